package termidx

import (
	"reflect"
	"testing"

	"github.com/fathom-index/fathom/pkg/postings"
)

func TestTermInfoExtentRoundTrip(t *testing.T) {
	ti := NewEmptyTermInfo()
	ti.Widen(3, 1.0, 5)
	ti.Widen(9, 2.5, 8)
	ti.Extent = postings.Extent{Offset: 1024, Length: 256}

	enc := ti.Encode()
	got, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if got.DocFreq != 2 {
		t.Errorf("DocFreq = %d; want 2", got.DocFreq)
	}
	if got.MinID != 3 || got.MaxID != 9 {
		t.Errorf("MinID/MaxID = %d/%d; want 3/9", got.MinID, got.MaxID)
	}
	if got.MaxWeight != 2.5 {
		t.Errorf("MaxWeight = %v; want 2.5", got.MaxWeight)
	}
	if got.Extent != ti.Extent {
		t.Errorf("Extent = %+v; want %+v", got.Extent, ti.Extent)
	}
	if got.Inlined {
		t.Error("should not be inlined")
	}
}

func TestTermInfoInlineRoundTrip(t *testing.T) {
	ti := NewEmptyTermInfo()
	ti.Widen(1, 1.0, 2)
	ti.Inlined = true
	ti.Inline = []byte{1, 2, 3, 4}

	enc := ti.Encode()
	got, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Inlined {
		t.Fatal("should be inlined")
	}
	if !reflect.DeepEqual(got.Inline, ti.Inline) {
		t.Errorf("Inline = %v; want %v", got.Inline, ti.Inline)
	}
}

func TestFieldTableInternAndRoundTrip(t *testing.T) {
	ft := NewFieldTable()
	idTitle := ft.Intern("title")
	idBody := ft.Intern("body")
	if again := ft.Intern("title"); again != idTitle {
		t.Errorf("Intern(title) second call = %d; want %d", again, idTitle)
	}
	if ft.Name(idTitle) != "title" || ft.Name(idBody) != "body" {
		t.Errorf("Name lookups failed: %q, %q", ft.Name(idTitle), ft.Name(idBody))
	}

	enc := ft.Encode()
	got, err := DecodeFieldTable(enc)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name(idTitle) != "title" || got.Name(idBody) != "body" {
		t.Errorf("decoded table: got %q, %q", got.Name(idTitle), got.Name(idBody))
	}
}
