package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

func uint256(label string, slot uint64) models.Slot {
	return models.Slot{Slot: slot, Bytes: 32, Type: "t_uint256", Label: label}
}

func entry(label string, slot, offset, bytes uint64, typ string) models.Slot {
	return models.Slot{Slot: slot, Offset: offset, Bytes: bytes, Type: typ, Label: label, Reserved: isReserved(label)}
}

func layoutOf(entries ...models.Slot) models.StorageLayout {
	return models.StorageLayout{Entries: entries}
}

func kinds(r Report) []domain.ViolationKind {
	out := make([]domain.ViolationKind, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Kind)
	}
	return out
}

func labels(slots []models.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Label)
	}
	return out
}

var base = layoutOf(
	uint256("total", 0),
	entry("owner", 1, 0, 20, "t_address"),
	entry("paused", 1, 20, 1, "t_bool"),
	entry("balances", 2, 0, 32, "t_mapping(t_address,t_uint256)"),
)

func TestVerifyReflexive(t *testing.T) {
	for _, l := range []models.StorageLayout{base, {}, layoutOf(uint256("x", 0))} {
		report := Verify(l, l)
		assert.True(t, report.Compatible)
		assert.Empty(t, report.Violations)
		assert.Empty(t, report.Appended)
		assert.NoError(t, report.Err())
	}
}

func TestVerifyAppend(t *testing.T) {
	candidate := layoutOf(append(append([]models.Slot(nil), base.Entries...),
		uint256("cap", 3),
		entry("fee", 4, 0, 2, "t_uint16"),
	)...)

	report := Verify(base, candidate)
	require.True(t, report.Compatible)
	assert.Equal(t, []string{"cap", "fee"}, labels(report.Appended))
	assert.Empty(t, report.Reserved)
}

func TestVerifyFromEmptyLayout(t *testing.T) {
	report := Verify(models.StorageLayout{}, base)
	require.True(t, report.Compatible)
	assert.Len(t, report.Appended, len(base.Entries))
}

func TestVerifyPermutation(t *testing.T) {
	old := layoutOf(uint256("x", 0), uint256("y", 1), uint256("z", 2))
	swapped := layoutOf(uint256("z", 0), uint256("y", 1), uint256("x", 2))

	report := Verify(old, swapped)
	require.False(t, report.Compatible)
	assert.Equal(t, []domain.ViolationKind{domain.ViolationSlotReordered, domain.ViolationSlotReordered}, kinds(report))
	assert.Equal(t, "x", report.Violations[0].Label)
	assert.Equal(t, "z", report.Violations[1].Label)
	assert.ErrorIs(t, report.Err(), domain.ErrSlotReordered)
}

func TestVerifyInsertInMiddle(t *testing.T) {
	old := layoutOf(uint256("x", 0), uint256("y", 1))
	inserted := layoutOf(uint256("x", 0), uint256("w", 1), uint256("y", 2))

	report := Verify(old, inserted)
	require.False(t, report.Compatible)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, domain.ViolationSlotReordered, report.Violations[0].Kind)
	assert.Equal(t, "y", report.Violations[0].Label)
}

func TestVerifyWidthChange(t *testing.T) {
	candidate := layoutOf(
		entry("total", 0, 0, 16, "t_uint128"),
		entry("owner", 1, 0, 20, "t_address"),
		entry("paused", 1, 20, 1, "t_bool"),
		entry("balances", 2, 0, 32, "t_mapping(t_address,t_uint256)"),
	)

	report := Verify(base, candidate)
	require.False(t, report.Compatible)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, domain.ViolationSlotWidthMismatch, report.Violations[0].Kind)
	assert.Equal(t, "total", report.Violations[0].Label)
	assert.ErrorIs(t, report.Err(), domain.ErrSlotWidthMismatch)
}

func TestVerifyTypeChange(t *testing.T) {
	tests := []struct {
		name       string
		old, new   models.Slot
		compatible bool
	}{
		{
			name: "address to bytes20",
			old:  entry("owner", 0, 0, 20, "t_address"),
			new:  entry("owner", 0, 0, 20, "t_bytes20"),
		},
		{
			name: "mapping value type",
			old:  entry("m", 0, 0, 32, "t_mapping(t_address,t_uint256)"),
			new:  entry("m", 0, 0, 32, "t_mapping(t_address,t_int256)"),
		},
		{
			name:       "contract to address",
			old:        entry("token", 0, 0, 20, "t_contract(IERC20)1234"),
			new:        entry("token", 0, 0, 20, "t_address"),
			compatible: true,
		},
		{
			name:       "renamed struct",
			old:        entry("cfg", 0, 0, 32, "t_struct(Config)12_storage"),
			new:        entry("cfg", 0, 0, 32, "t_struct(Settings)40_storage"),
			compatible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Verify(layoutOf(tt.old), layoutOf(tt.new))
			assert.Equal(t, tt.compatible, report.Compatible)
			if !tt.compatible {
				assert.Equal(t, []domain.ViolationKind{domain.ViolationSlotTypeMismatch}, kinds(report))
			}
		})
	}
}

func TestVerifyCompaction(t *testing.T) {
	old := layoutOf(uint256("x", 0), uint256("y", 1), uint256("z", 2))
	compacted := layoutOf(uint256("x", 0), uint256("z", 1))

	report := Verify(old, compacted)
	require.False(t, report.Compatible)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, domain.ViolationSlotRemoved, report.Violations[0].Kind)
	assert.Equal(t, "y", report.Violations[0].Label)
	assert.Equal(t, uint64(1), report.Violations[0].Slot)
	assert.ErrorIs(t, report.Err(), domain.ErrSlotRemoved)
}

func TestVerifyRemovalLeavingGap(t *testing.T) {
	old := layoutOf(uint256("x", 0), uint256("y", 1), uint256("z", 2))

	t.Run("empty position", func(t *testing.T) {
		report := Verify(old, layoutOf(uint256("x", 0), uint256("z", 2)))
		require.True(t, report.Compatible)
		assert.Equal(t, []string{"y"}, labels(report.Reserved))
	})

	t.Run("placeholder", func(t *testing.T) {
		report := Verify(old, layoutOf(uint256("x", 0), uint256("__deprecated_y", 1), uint256("z", 2)))
		require.True(t, report.Compatible)
		assert.Equal(t, []string{"y"}, labels(report.Reserved))
	})

	t.Run("narrow placeholder", func(t *testing.T) {
		report := Verify(old, layoutOf(uint256("x", 0), entry("__deprecated_y", 1, 0, 1, "t_bool"), uint256("z", 2)))
		require.False(t, report.Compatible)
		assert.Equal(t, []domain.ViolationKind{domain.ViolationSlotWidthMismatch}, kinds(report))
	})
}

func TestVerifyRename(t *testing.T) {
	old := layoutOf(uint256("x", 0), uint256("y", 1))

	report := Verify(old, layoutOf(uint256("x", 0), uint256("supply", 1)))
	assert.True(t, report.Compatible)

	report = Verify(old, layoutOf(uint256("x", 0), entry("flag", 1, 0, 1, "t_bool")))
	require.False(t, report.Compatible)
	assert.Equal(t, []domain.ViolationKind{domain.ViolationSlotWidthMismatch}, kinds(report))
	assert.Contains(t, report.Violations[0].Detail, "renamed to flag")
}

func TestVerifyOverlappingNewVariable(t *testing.T) {
	old := layoutOf(uint256("x", 0), uint256("y", 1))
	candidate := layoutOf(uint256("x", 0), entry("w", 1, 16, 16, "t_uint128"))

	report := Verify(old, candidate)
	require.False(t, report.Compatible)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, domain.ViolationSlotWidthMismatch, report.Violations[0].Kind)
	assert.Equal(t, "y", report.Violations[0].Label)
}

func TestVerifyGapConsumption(t *testing.T) {
	old := layoutOf(
		uint256("x", 0),
		entry("__gap", 1, 0, 64, "t_array(t_uint256)2_storage"),
		uint256("z", 3),
	)
	candidate := layoutOf(
		uint256("x", 0),
		uint256("added", 1),
		entry("__gap", 2, 0, 32, "t_array(t_uint256)1_storage"),
		uint256("z", 3),
	)

	report := Verify(old, candidate)
	require.True(t, report.Compatible, "%v", report.Violations)
	assert.Empty(t, report.Appended)
}

func TestVerifyStructMembersFollowParent(t *testing.T) {
	old := layoutOf(
		entry("cfg", 0, 0, 64, "t_struct(Config)12_storage"),
		uint256("cfg.price", 0),
		uint256("cfg.cap", 1),
		uint256("tail", 2),
	)
	moved := layoutOf(
		uint256("tail", 0),
		entry("cfg", 1, 0, 64, "t_struct(Config)12_storage"),
		uint256("cfg.price", 1),
		uint256("cfg.cap", 2),
	)

	report := Verify(old, moved)
	require.False(t, report.Compatible)
	assert.Equal(t, []string{"cfg", "tail"}, []string{report.Violations[0].Label, report.Violations[1].Label})
	assert.Len(t, report.Violations, 2)
}

func TestVerifyStructMemberChange(t *testing.T) {
	old := layoutOf(
		entry("cfg", 0, 0, 64, "t_struct(Config)12_storage"),
		uint256("cfg.price", 0),
		uint256("cfg.cap", 1),
	)
	changed := layoutOf(
		entry("cfg", 0, 0, 64, "t_struct(Config)12_storage"),
		uint256("cfg.price", 0),
		entry("cfg.cap", 1, 0, 32, "t_address_payable"),
	)

	report := Verify(old, changed)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, domain.ViolationSlotTypeMismatch, report.Violations[0].Kind)
	assert.Equal(t, "cfg.cap", report.Violations[0].Label)
}

func TestVerifyReportsEveryViolation(t *testing.T) {
	old := layoutOf(uint256("a", 0), entry("b", 1, 0, 20, "t_address"), uint256("c", 2))
	candidate := layoutOf(
		entry("a", 0, 0, 8, "t_uint64"),
		entry("b", 1, 0, 20, "t_bytes20"),
		uint256("c", 2),
	)

	report := Verify(old, candidate)
	require.False(t, report.Compatible)
	assert.Equal(t, []domain.ViolationKind{domain.ViolationSlotWidthMismatch, domain.ViolationSlotTypeMismatch}, kinds(report))

	var verr *domain.VerificationError
	require.ErrorAs(t, report.Err(), &verr)
	assert.Len(t, verr.Violations, 2)
	assert.ErrorIs(t, report.Err(), domain.ErrSlotWidthMismatch)
	assert.ErrorIs(t, report.Err(), domain.ErrSlotTypeMismatch)
	assert.NotErrorIs(t, report.Err(), domain.ErrSlotRemoved)
}

func TestVerifyIsDeterministic(t *testing.T) {
	old := layoutOf(uint256("x", 0), uint256("y", 1), uint256("z", 2))
	candidate := layoutOf(uint256("z", 0), entry("x", 1, 0, 16, "t_uint128"))

	first := Verify(old, candidate)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Verify(old, candidate))
	}
}

func TestVerifyDoesNotMutateInput(t *testing.T) {
	old := layoutOf(uint256("z", 2), uint256("x", 0))
	candidate := layoutOf(uint256("x", 0))
	_ = Verify(old, candidate)
	assert.Equal(t, "z", old.Entries[0].Label)
}
