package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageSetValidate(t *testing.T) {
	t.Run("valid set", func(t *testing.T) {
		set := okSet(
			&fakeStage{name: "download", checkpoint: 10},
			&fakeStage{name: "extract", checkpoint: 30},
			&fakeStage{name: "analyze", checkpoint: 70},
			&fakeStage{name: "persist", checkpoint: 90},
			&fakeStage{name: "notify", checkpoint: 100},
		)
		assert.NoError(t, set.Validate())
	})

	t.Run("missing kind", func(t *testing.T) {
		set := okSet()
		delete(set, KindCleanup)
		err := set.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cleanup")
	})

	t.Run("empty sequence", func(t *testing.T) {
		set := okSet()
		set[KindNotify] = nil
		assert.Error(t, set.Validate())
	})

	t.Run("descending checkpoints", func(t *testing.T) {
		set := okSet(
			&fakeStage{name: "a", checkpoint: 50},
			&fakeStage{name: "b", checkpoint: 40},
			&fakeStage{name: "c", checkpoint: 100},
		)
		err := set.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of order")
	})

	t.Run("checkpoint above 100", func(t *testing.T) {
		set := okSet(&fakeStage{name: "a", checkpoint: 110})
		assert.Error(t, set.Validate())
	})

	t.Run("sequence not ending at 100", func(t *testing.T) {
		set := okSet(
			&fakeStage{name: "a", checkpoint: 10},
			&fakeStage{name: "b", checkpoint: 90},
		)
		err := set.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "want 100")
	})

	t.Run("repeated checkpoint is allowed", func(t *testing.T) {
		set := okSet(
			&fakeStage{name: "thumbnail", checkpoint: 100},
			&fakeStage{name: "notify", checkpoint: 100},
		)
		assert.NoError(t, set.Validate())
	})
}
