package automation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategy_First(t *testing.T) {
	s := Strategy{Name: "thing", Candidates: []Candidate{
		{Describe: "primary", Selector: "#primary"},
		{Describe: "fallback", Selector: "#fallback"},
	}}

	t.Run("first candidate wins", func(t *testing.T) {
		page := newFakePage()
		page.elements["#primary"] = &fakeElement{text: "a"}
		page.elements["#fallback"] = &fakeElement{text: "b"}

		el, candidate, err := s.First(page, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "primary", candidate.Describe)
		text, _ := el.Text()
		assert.Equal(t, "a", text)
	})

	t.Run("falls through to later candidates", func(t *testing.T) {
		page := newFakePage()
		page.elements["#fallback"] = &fakeElement{text: "b"}

		_, candidate, err := s.First(page, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "fallback", candidate.Describe)
	})

	t.Run("no candidate matches", func(t *testing.T) {
		_, _, err := s.First(newFakePage(), time.Millisecond)
		assert.ErrorIs(t, err, ErrElementNotFound)
	})
}

func TestStrategy_FirstText(t *testing.T) {
	s := Strategy{Name: "thing", Candidates: []Candidate{{Selector: "#x"}}}

	page := newFakePage()
	page.elements["#x"] = &fakeElement{text: "  padded  "}
	assert.Equal(t, "padded", s.FirstText(page, time.Millisecond))

	assert.Empty(t, s.FirstText(newFakePage(), time.Millisecond))
}

func TestDefaultLocators_Complete(t *testing.T) {
	set := DefaultLocators()

	strategies := []Strategy{
		set.Login.EmailField, set.Login.PasswordField, set.Login.SignInButton,
		set.Login.ErrorRegion, set.Login.Challenge, set.Login.SignedInMarker,
		set.Product.Price, set.Product.Availability, set.Product.AddToCart,
		set.Product.Details,
		set.Checkout.CartDelete, set.Checkout.ProceedToCheckout,
		set.Checkout.AddressEntry, set.Checkout.OrderTotal,
		set.Checkout.PlaceOrder, set.Checkout.Confirmation, set.Checkout.OrderID,
	}
	for _, s := range strategies {
		assert.NotEmpty(t, s.Name)
		assert.NotEmpty(t, s.Candidates, "strategy %s has no candidates", s.Name)
	}
}

func TestLoadLocators(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		set, err := LoadLocators("")
		require.NoError(t, err)
		assert.Equal(t, DefaultLocators(), set)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadLocators(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("overrides replace only named strategies", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "locators.yaml")
		content := `
login:
  email_field:
    candidates:
      - describe: experiment email input
        selector: "#email-v2"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		set, err := LoadLocators(path)
		require.NoError(t, err)

		require.Len(t, set.Login.EmailField.Candidates, 1)
		assert.Equal(t, "#email-v2", set.Login.EmailField.Candidates[0].Selector)
		assert.Equal(t, "email_field", set.Login.EmailField.Name, "merged strategy keeps its name")

		// Untouched strategies keep their defaults.
		assert.Equal(t, DefaultLocators().Login.PasswordField, set.Login.PasswordField)
		assert.Equal(t, DefaultLocators().Checkout.PlaceOrder, set.Checkout.PlaceOrder)
	})

	t.Run("malformed yaml errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("login: [not a map"), 0o644))
		_, err := LoadLocators(path)
		require.Error(t, err)
	})
}
