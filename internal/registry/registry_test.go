package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

func seed() []models.ModelDescriptor {
	return []models.ModelDescriptor{
		{ID: "a", Name: "A", Modality: models.ModalityText, Enabled: true, APIKey: "key-a"},
		{ID: "b", Name: "B", Modality: models.ModalityText, Enabled: false},
		{ID: "img", Name: "Img", Modality: models.ModalityImage, Enabled: true},
		{ID: "c", Name: "C", Modality: models.ModalityText, Enabled: true},
	}
}

func TestEnabledKeepsConfigurationOrder(t *testing.T) {
	r := New(seed(), "")

	text := r.Enabled(models.ModalityText)
	require.Len(t, text, 2)
	assert.Equal(t, "a", text[0].ID)
	assert.Equal(t, "c", text[1].ID)

	assert.Len(t, r.Enabled(models.ModalityImage), 1)
	assert.Empty(t, r.Enabled(models.ModalityVideo))
}

func TestListReturnsCopies(t *testing.T) {
	r := New(seed(), "")

	list := r.List()
	list[0].Name = "mutated"

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
}

func TestAddUpdateRemove(t *testing.T) {
	r := New(seed(), "a")

	require.NoError(t, r.Add(models.ModelDescriptor{ID: "d", Modality: models.ModalityText, Enabled: true}))
	assert.Error(t, r.Add(models.ModelDescriptor{ID: "d"}), "duplicate id")
	assert.Error(t, r.Add(models.ModelDescriptor{}), "empty id")
	assert.Equal(t, 5, r.Size())

	require.NoError(t, r.Update(models.ModelDescriptor{ID: "a", Name: "Renamed", Enabled: true, Modality: models.ModalityText}))
	got, _ := r.Get("a")
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "key-a", got.APIKey, "empty key on update keeps the stored key")

	err := r.Update(models.ModelDescriptor{ID: "ghost"})
	assert.True(t, errors.Is(err, ErrModelNotFound))

	require.NoError(t, r.Remove("a"))
	assert.Equal(t, "", r.KingModelID(), "removing the King clears the pin")
	assert.True(t, errors.Is(r.Remove("a"), ErrModelNotFound))
}

func TestKingPin(t *testing.T) {
	r := New(seed(), "")

	require.NoError(t, r.SetKingModelID("c"))
	assert.Equal(t, "c", r.KingModelID())

	assert.True(t, errors.Is(r.SetKingModelID("ghost"), ErrModelNotFound))
	assert.Equal(t, "c", r.KingModelID())

	require.NoError(t, r.SetKingModelID(""))
	assert.Equal(t, "", r.KingModelID())
}

func TestWipe(t *testing.T) {
	r := New(seed(), "a")
	r.Wipe()

	assert.Equal(t, 0, r.Size())
	assert.Equal(t, "", r.KingModelID())
}

func TestConcurrentAccess(t *testing.T) {
	r := New(seed(), "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Enabled(models.ModalityText)
		}()
		go func() {
			defer wg.Done()
			_ = r.Update(models.ModelDescriptor{ID: "c", Name: "C", Modality: models.ModalityText, Enabled: true})
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, r.Size())
}
