package form

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scraperWith(t *testing.T, controls []rawControl) (*Scraper, *fakePage) {
	t.Helper()
	page := newFakePage()
	page.on(collectControlsJS, func([]any) (any, error) { return controls, nil })
	return NewScraper(page, fastTiming(), testLogger(t)), page
}

func TestScrape_TextInputAndNativeSelect(t *testing.T) {
	scraper, _ := scraperWith(t, []rawControl{
		{ID: "email", Label: "Email", Slug: "email", Visible: true, Widget: WidgetText},
		{ID: "state", Label: "State", Slug: "state", Visible: true, Widget: WidgetSelect, Options: []option{
			{Text: "Select", Value: ""},
			{Text: "CA", Value: "ca"},
			{Text: "NY", Value: "ny"},
		}},
	})

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)

	want := []FieldDescriptor{
		{Name: "email", Kind: KindText, Label: "Email"},
		{Name: "state", Kind: KindSelect, Label: "State", Options: []string{"CA", "NY"}},
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("Scrape() mismatch (-want +got):\n%s", diff)
	}
}

func TestScrape_EmptyDocument(t *testing.T) {
	scraper, _ := scraperWith(t, nil)

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestScrape_SkipsInvisibleAndUnidentified(t *testing.T) {
	scraper, _ := scraperWith(t, []rawControl{
		{Name: "hidden", Visible: false, Widget: WidgetText},
		{Visible: true, Widget: WidgetText, Placeholder: "nothing to go on"},
		{Name: "city", Visible: true, Widget: WidgetText},
	})

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "city", fields[0].Name)
	assert.Equal(t, "city", fields[0].Label, "label falls back to the identifier")
}

func TestScrape_IdentifierOrder(t *testing.T) {
	tests := []struct {
		name    string
		control rawControl
		want    string
	}{
		{"formcontrolname wins", rawControl{FormControlName: "fcn", Name: "n", ID: "i", Slug: "s"}, "fcn"},
		{"name before id", rawControl{Name: "n", ID: "i", Slug: "s"}, "n"},
		{"id before label", rawControl{ID: "i", Slug: "s"}, "i"},
		{"label slug fallback", rawControl{Slug: "first-name"}, "first-name"},
		{"nothing", rawControl{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identifier(tt.control))
		})
	}
}

func TestScrape_RadioGroupCollapses(t *testing.T) {
	scraper, _ := scraperWith(t, []rawControl{
		{Name: "plan", Label: "Basic", Visible: true, Widget: WidgetRadio},
		{Name: "plan", Label: "Pro", Visible: true, Widget: WidgetRadio},
		{Name: "plan", Label: "Pro", Visible: true, Widget: WidgetRadio},
		{Name: "plan", Label: "", Visible: true, Widget: WidgetRadio},
		{Name: "plan", Label: "Enterprise", Visible: true, Widget: WidgetRadio},
	})

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, KindRadio, fields[0].Kind)
	assert.Equal(t, []string{"Basic", "Pro", "Enterprise"}, fields[0].Options)
}

func TestScrape_CompositeSupersedesPlainDuplicate(t *testing.T) {
	page := newFakeForm(map[string]*fakeControl{
		"country": {widget: WidgetComposite, panel: []string{"Choose one", "Canada", "Mexico"}},
	})
	page.on(collectControlsJS, func([]any) (any, error) {
		return []rawControl{
			{Name: "country", Label: "Country", Visible: true, Widget: WidgetText},
			{Name: "notes", Label: "Notes", Visible: true, Widget: WidgetText},
			{Name: "country", Label: "Country", Visible: true, Widget: WidgetComposite},
		}, nil
	})
	scraper := NewScraper(page, fastTiming(), testLogger(t))

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)

	want := []FieldDescriptor{
		{Name: "country", Kind: KindSelect, Label: "Country", Options: []string{"Canada", "Mexico"}, Composite: true},
		{Name: "notes", Kind: KindText, Label: "Notes"},
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("Scrape() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, page.count(expandCompositeJS))
	assert.Equal(t, 1, page.count(collapseCompositeJS))
	assert.False(t, page.controls["country"].open, "dropdown must be collapsed after scraping")
}

func TestScrape_PlainDuplicatesKeepFirst(t *testing.T) {
	scraper, _ := scraperWith(t, []rawControl{
		{Name: "phone", Label: "Mobile", Visible: true, Widget: WidgetText},
		{Name: "phone", Label: "Home", Visible: true, Widget: WidgetText},
		{Name: "phone", Label: "Phone type", Visible: true, Widget: WidgetCheckbox},
	})

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "Mobile", fields[0].Label)
}

func TestScrape_StaticListboxIsReadWithoutPressing(t *testing.T) {
	page := newFakeForm(map[string]*fakeControl{
		"size": {widget: WidgetComposite, open: true, panel: []string{"Small", "Large"}},
	})
	page.on(collectControlsJS, func([]any) (any, error) {
		return []rawControl{{Name: "size", Label: "Size", Visible: true, Widget: WidgetComposite}}, nil
	})
	scraper := NewScraper(page, fastTiming(), testLogger(t))

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, []string{"Small", "Large"}, fields[0].Options)
	assert.Zero(t, page.count(expandCompositeJS))
	assert.Zero(t, page.count(collapseCompositeJS))
	assert.True(t, page.controls["size"].open, "visible state must be left as found")
}

func TestScrape_CompositeClosedByHostPress(t *testing.T) {
	page := newFakeForm(map[string]*fakeControl{
		"size": {widget: WidgetComposite, toggles: true, panel: []string{"Small", "Large"}},
	})
	page.on(collectControlsJS, func([]any) (any, error) {
		return []rawControl{{Name: "size", Label: "Size", Visible: true, Widget: WidgetComposite}}, nil
	})
	scraper := NewScraper(page, fastTiming(), testLogger(t))

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, []string{"Small", "Large"}, fields[0].Options)
	assert.False(t, page.controls["size"].open, "panel must not be left open")
	assert.Equal(t, 1, page.count(toggleCompositeJS))
}

func TestScrape_CompositeClosedByEscapeIsNotPressedAgain(t *testing.T) {
	page := newFakeForm(map[string]*fakeControl{
		"size": {widget: WidgetComposite, panel: []string{"Small", "Large"}},
	})
	page.on(collectControlsJS, func([]any) (any, error) {
		return []rawControl{{Name: "size", Label: "Size", Visible: true, Widget: WidgetComposite}}, nil
	})
	scraper := NewScraper(page, fastTiming(), testLogger(t))

	_, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	assert.False(t, page.controls["size"].open)
	assert.Zero(t, page.count(toggleCompositeJS))
}

func TestFieldDescriptor_JSON(t *testing.T) {
	data, err := json.Marshal(FieldDescriptor{Name: "state", Kind: KindSelect, Label: "State", Options: []string{"CA", "NY"}, Composite: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"state","kind":"select","label":"State","options":["CA","NY"]}`, string(data))
}

func TestScrape_PanelNeverAppears(t *testing.T) {
	page := newFakeForm(map[string]*fakeControl{
		"brand": {widget: WidgetComposite},
	})
	page.on(collectControlsJS, func([]any) (any, error) {
		return []rawControl{{Name: "brand", Visible: true, Widget: WidgetComposite}}, nil
	})
	scraper := NewScraper(page, fastTiming(), testLogger(t))

	fields, err := scraper.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Empty(t, fields[0].Options)
	assert.Equal(t, 1, page.count(collapseCompositeJS))
	assert.Greater(t, page.count(panelOptionsJS), 2, "panel should be polled until the timeout")
}

func TestScrape_CollectFailure(t *testing.T) {
	page := newFakePage()
	boom := errors.New("target closed")
	page.on(collectControlsJS, func([]any) (any, error) { return nil, boom })
	scraper := NewScraper(page, fastTiming(), testLogger(t))

	_, err := scraper.Scrape(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestDescribe_FiltersPlaceholderOptions(t *testing.T) {
	f := describe(rawControl{Widget: WidgetSelect, Options: []option{
		{Text: "-- Select a state --", Value: "none"},
		{Text: "", Value: "blank"},
		{Text: "Please choose", Value: "x"},
		{Text: "Texas", Value: "TX"},
		{Text: "Selected Items", Value: "sel"},
	}}, "state")

	if diff := cmp.Diff([]string{"Texas", "Selected Items"}, f.Options, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}
