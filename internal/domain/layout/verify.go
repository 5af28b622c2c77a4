package layout

import (
	"fmt"
	"sort"

	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// Report is the outcome of comparing a proxy's current layout with a
// candidate layout.
type Report struct {
	Compatible bool               `json:"compatible"`
	Violations []domain.Violation `json:"violations,omitempty"`

	// Reserved lists old variables whose storage is left unused or taken
	// over by a placeholder in the candidate.
	Reserved []models.Slot `json:"reserved,omitempty"`

	// Appended lists new variables placed after the old layout's last slot
	Appended []models.Slot `json:"appended,omitempty"`
}

// Err returns a *domain.VerificationError carrying every violation, or nil
func (r Report) Err() error {
	if r.Compatible {
		return nil
	}
	return &domain.VerificationError{Violations: r.Violations}
}

type positionKey struct {
	pos   models.Position
	depth int
}

func keyOf(s models.Slot) positionKey {
	return positionKey{pos: s.Position(), depth: depth(s.Label)}
}

// Verify decides whether a proxy whose storage was written under old can
// switch to an implementation compiled with candidate. Every violation is
// reported, not just the first. Verify is pure: the same inputs always give
// the same report.
//
// Rules, applied to each old variable in storage order:
//   - same label at the same position: width and type family must match
//   - same label at a different position: SlotReordered, unless an earlier
//     removal already explains why it moved up
//   - label gone, a placeholder or nothing left in its place: reserved
//   - label gone, a new label in its place: a rename, width and type family
//     must match
//   - label gone, another old variable shifted into its place: SlotRemoved
//
// New variables after the old layout's last slot are appended.
func Verify(old, candidate models.StorageLayout) Report {
	oldEntries := sorted(old.Entries)
	newEntries := sorted(candidate.Entries)

	oldLabels := make(map[string]bool, len(oldEntries))
	for _, o := range oldEntries {
		oldLabels[o.Label] = true
	}

	newByLabel := make(map[string][]models.Slot, len(newEntries))
	newByKey := make(map[positionKey]models.Slot, len(newEntries))
	for _, n := range newEntries {
		newByLabel[n.Label] = append(newByLabel[n.Label], n)
		if _, taken := newByKey[keyOf(n)]; !taken {
			newByKey[keyOf(n)] = n
		}
	}

	v := &verification{violated: map[string]bool{}}
	removedAt := uint64(0)
	removed := false

	for _, o := range oldEntries {
		// a violated variable's members are implied by the parent's violation
		if depth(o.Label) > 0 && v.violated[root(o.Label)] {
			continue
		}
		if o.Reserved {
			continue
		}

		if matches, ok := newByLabel[o.Label]; ok {
			n := pickSamePosition(matches, o)
			if n.Position() == o.Position() {
				v.compare(o, n, "")
				continue
			}
			if removed && n.Start() < o.Start() && removedAt < o.Start() {
				// shifted up by an earlier removal, already reported
				v.violated[root(o.Label)] = true
				continue
			}
			v.add(o, domain.ViolationSlotReordered,
				fmt.Sprintf("moved from slot %d offset %d to slot %d offset %d", o.Slot, o.Offset, n.Slot, n.Offset))
			continue
		}

		occupant, occupied := newByKey[keyOf(o)]
		switch {
		case occupied && occupant.Reserved:
			if occupant.Bytes < o.Bytes {
				v.add(o, domain.ViolationSlotWidthMismatch,
					fmt.Sprintf("placeholder %s holds %d bytes, removed variable held %d", occupant.Label, occupant.Bytes, o.Bytes))
				continue
			}
			v.report.Reserved = append(v.report.Reserved, o)

		case occupied && !oldLabels[occupant.Label]:
			v.compare(o, occupant, fmt.Sprintf("renamed to %s: ", occupant.Label))

		case occupied:
			v.add(o, domain.ViolationSlotRemoved,
				fmt.Sprintf("removed; %s shifted into its position", occupant.Label))
			if !removed {
				removed, removedAt = true, o.Start()
			}

		default:
			overlap, found := overlapping(newEntries, o)
			if !found {
				v.report.Reserved = append(v.report.Reserved, o)
				continue
			}
			if oldLabels[overlap.Label] {
				v.add(o, domain.ViolationSlotRemoved,
					fmt.Sprintf("removed; %s now overlaps its bytes", overlap.Label))
				if !removed {
					removed, removedAt = true, o.Start()
				}
				continue
			}
			v.add(o, domain.ViolationSlotWidthMismatch,
				fmt.Sprintf("new variable %s overlaps its bytes at slot %d offset %d", overlap.Label, overlap.Slot, overlap.Offset))
		}
	}

	maxOld, hasOld := old.MaxSlot()
	for _, n := range newEntries {
		if oldLabels[n.Label] || n.Reserved {
			continue
		}
		if !hasOld || n.Slot > maxOld {
			v.report.Appended = append(v.report.Appended, n)
		}
	}

	sort.SliceStable(v.report.Violations, func(i, j int) bool {
		a, b := v.report.Violations[i], v.report.Violations[j]
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		return a.Offset < b.Offset
	})
	v.report.Compatible = len(v.report.Violations) == 0
	return v.report
}

type verification struct {
	report   Report
	violated map[string]bool
}

func (v *verification) add(o models.Slot, kind domain.ViolationKind, detail string) {
	v.violated[root(o.Label)] = true
	v.report.Violations = append(v.report.Violations, domain.Violation{
		Kind:   kind,
		Slot:   o.Slot,
		Offset: o.Offset,
		Label:  o.Label,
		Detail: detail,
	})
}

// compare checks a variable that kept its position
func (v *verification) compare(o, n models.Slot, prefix string) {
	if o.Bytes != n.Bytes {
		v.add(o, domain.ViolationSlotWidthMismatch,
			fmt.Sprintf("%swidth changed from %d to %d bytes", prefix, o.Bytes, n.Bytes))
		return
	}
	if !SameFamily(o.Type, n.Type) {
		v.add(o, domain.ViolationSlotTypeMismatch,
			fmt.Sprintf("%stype changed from %s to %s", prefix, Family(o.Type), Family(n.Type)))
	}
}

func pickSamePosition(matches []models.Slot, o models.Slot) models.Slot {
	for _, m := range matches {
		if m.Position() == o.Position() {
			return m
		}
	}
	return matches[0]
}

// overlapping finds a non-placeholder candidate variable at the same nesting
// level that shares bytes with o
func overlapping(entries []models.Slot, o models.Slot) (models.Slot, bool) {
	d := depth(o.Label)
	for _, n := range entries {
		if n.Reserved || depth(n.Label) != d {
			continue
		}
		if n.Overlaps(o) {
			return n, true
		}
	}
	return models.Slot{}, false
}

func sorted(entries []models.Slot) []models.Slot {
	out := make([]models.Slot, len(entries))
	copy(out, entries)
	sortEntries(out)
	return out
}
