package layers

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRegistryIsConsistent(t *testing.T) {
	seen := map[string]bool{}
	for _, info := range Supported() {
		if !info.Type.Valid() {
			t.Fatalf("%s: type not valid", info.Code)
		}
		if seen[info.Code] {
			t.Fatalf("duplicate code %q", info.Code)
		}
		seen[info.Code] = true

		if info.Interval <= 0 {
			t.Errorf("%s: interval must be positive", info.Code)
		}
		if info.Category != CategoryTile && info.Endpoint == "" {
			t.Errorf("%s: %s layers need an endpoint", info.Code, info.Category)
		}
		parsed, err := Parse(info.Code)
		if err != nil || parsed != info.Type {
			t.Errorf("Parse(%q) = %v, %v", info.Code, parsed, err)
		}
	}
}

func TestSupportedReturnsCopy(t *testing.T) {
	a := Supported()
	a[0].Name = "changed"
	if Supported()[0].Name == "changed" {
		t.Fatal("registry mutated through Supported()")
	}
}

func TestByCategory(t *testing.T) {
	groups := ByCategory()
	if len(groups) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(groups))
	}
	total := 0
	for cat, infos := range groups {
		for _, info := range infos {
			if info.Category != cat {
				t.Fatalf("%s filed under %s", info.Code, cat)
			}
		}
		total += len(infos)
	}
	if total != len(Supported()) {
		t.Fatalf("grouped %d layers, registry has %d", total, len(Supported()))
	}
	if groups[CategoryTile][0].Type != Radar {
		t.Fatalf("expected radar first, got %s", groups[CategoryTile][0].Code)
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("lightning")
	if !errors.Is(err, ErrUnsupportedLayerType) {
		t.Fatalf("expected ErrUnsupportedLayerType, got %v", err)
	}
	if TypeUnknown.Valid() || TypeUnknown.Code() != "unknown" || TypeUnknown.Category() != "" {
		t.Fatal("TypeUnknown must not resolve")
	}
	if _, ok := Lookup(Type(999)); ok {
		t.Fatal("expected lookup miss")
	}
}

func TestMustLookupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustLookup(Type(999))
}

func TestTypeJSONUsesCode(t *testing.T) {
	in := map[Type]int{Radar: 1, AdvisoryPolygons: 2}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"advisories":2,"radar":1}` {
		t.Fatalf("unexpected encoding %s", b)
	}

	var out struct {
		Layers []Type `json:"layers"`
	}
	if err := json.Unmarshal([]byte(`{"layers":["satellite","stormcells"]}`), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Layers) != 2 || out.Layers[0] != Satellite || out.Layers[1] != StormCells {
		t.Fatalf("decoded %v", out.Layers)
	}
	if err := json.Unmarshal([]byte(`{"layers":["bogus"]}`), &out); err == nil {
		t.Fatal("expected error for unknown code")
	}
}

func TestNaiveFrameCount(t *testing.T) {
	radar := MustLookup(Radar)
	end := time.Date(2024, 7, 4, 18, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		start time.Time
		want  int
	}{
		{"two hours of five minute frames", end.Add(-2 * time.Hour), 25},
		{"partial interval", end.Add(-7 * time.Minute), 2},
		{"empty range", end, 0},
		{"inverted range", end.Add(time.Hour), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := radar.NaiveFrameCount(tc.start, end); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestNearestIndex(t *testing.T) {
	base := time.Date(2024, 7, 4, 16, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(10 * time.Minute), base.Add(20 * time.Minute)}

	cases := []struct {
		name string
		at   time.Time
		want int
	}{
		{"before first", base.Add(-time.Hour), 0},
		{"after last", base.Add(time.Hour), 2},
		{"exact", base.Add(10 * time.Minute), 1},
		{"closer to later", base.Add(8 * time.Minute), 1},
		{"tie prefers earlier", base.Add(15 * time.Minute), 1},
		{"closer to earlier", base.Add(3 * time.Minute), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NearestIndex(times, tc.at); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
	if NearestIndex(nil, base) != -1 {
		t.Fatal("expected -1 for no times")
	}
}

func TestPolygonActiveAt(t *testing.T) {
	issued := time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(6 * time.Hour)
	p := Polygon{Issued: issued, Expires: expires}

	if p.ActiveAt(issued.Add(-time.Minute)) {
		t.Error("active before issue")
	}
	if !p.ActiveAt(issued) || !p.ActiveAt(expires.Add(-time.Minute)) {
		t.Error("inactive inside its window")
	}
	if p.ActiveAt(expires) {
		t.Error("active at expiry")
	}
	if !(Polygon{}).ActiveAt(issued) {
		t.Error("polygon with no times should always be active")
	}
}

func TestPayloadEmpty(t *testing.T) {
	if !(Payload{Type: Radar}).Empty() {
		t.Fatal("expected empty payload")
	}
	if (Payload{Type: Radar, TileURL: "https://tiles.test/radar/{z}/{x}/{y}/current.png"}).Empty() {
		t.Fatal("tile payload reported empty")
	}
	if (Payload{Type: Earthquakes, Points: []Point{{ID: "eq1"}}}).Empty() {
		t.Fatal("point payload reported empty")
	}
}
