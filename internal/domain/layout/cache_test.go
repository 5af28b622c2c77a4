package layout

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

func TestCache(t *testing.T) {
	impl := common.HexToAddress("0x1111111111111111111111111111111111111111")

	t.Run("first layout wins", func(t *testing.T) {
		c := NewCache()
		first := layoutOf(uint256("x", 0))
		second := layoutOf(uint256("y", 0))

		assert.Equal(t, first, c.Put(impl, first))
		assert.Equal(t, first, c.Put(impl, second))

		got, ok := c.Get(impl)
		require.True(t, ok)
		assert.Equal(t, first, got)
	})

	t.Run("returned layouts are copies", func(t *testing.T) {
		c := NewCache()
		c.Put(impl, layoutOf(uint256("x", 0)))

		got, _ := c.Get(impl)
		got.Entries[0].Label = "mutated"

		again, _ := c.Get(impl)
		assert.Equal(t, "x", again.Entries[0].Label)
	})

	t.Run("load once", func(t *testing.T) {
		c := NewCache()
		calls := 0
		load := func() (models.StorageLayout, error) {
			calls++
			return layoutOf(uint256("x", 0)), nil
		}

		for i := 0; i < 3; i++ {
			l, err := c.GetOrLoad(impl, load)
			require.NoError(t, err)
			assert.Len(t, l.Entries, 1)
		}
		assert.Equal(t, 1, calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		c := NewCache()
		_, err := c.GetOrLoad(impl, func() (models.StorageLayout, error) {
			return models.StorageLayout{}, domain.ErrMetadataUnavailable
		})
		assert.True(t, errors.Is(err, domain.ErrMetadataUnavailable))
		assert.Equal(t, 0, c.Len())
	})

	t.Run("concurrent access", func(t *testing.T) {
		c := NewCache()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				addr := common.HexToAddress("0x01")
				c.Put(addr, layoutOf(uint256("x", uint64(i))))
				_, _ = c.Get(addr)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, c.Len())
	})
}
