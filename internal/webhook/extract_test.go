package webhook

import "testing"

func TestExtractFromProviderIDs(t *testing.T) {
	p := &Payload{
		ProviderIDs: map[string]string{"anidb": "4563"},
		Metadata:    map[string]any{"anidb_id": "9999"},
		SeriesName:  "Death Note [1111]",
	}

	id, source, ok := ExtractAniDBID(p)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if id != 4563 || source != "provider_ids" {
		t.Fatalf("provider_ids must win over other sources, got %d via %s", id, source)
	}
}

func TestExtractProviderKeyVariants(t *testing.T) {
	for _, key := range []string{"anidb", "AniDB", "tvdb", "TVDB"} {
		p := &Payload{ProviderIDs: map[string]string{key: "42"}}
		id, _, ok := ExtractAniDBID(p)
		if !ok || id != 42 {
			t.Fatalf("key %q: expected 42, got %d (ok=%v)", key, id, ok)
		}
	}
}

func TestExtractFromMetadata(t *testing.T) {
	// Only malformed provider ids present; metadata is next in priority.
	p := &Payload{
		ProviderIDs: map[string]string{"anidb": "not-a-number"},
		Metadata:    map[string]any{"AniDBId": float64(7729)},
	}

	id, source, ok := ExtractAniDBID(p)
	if !ok || id != 7729 || source != "metadata" {
		t.Fatalf("expected 7729 via metadata, got %d via %s (ok=%v)", id, source, ok)
	}

	// String-typed metadata values work too.
	p = &Payload{Metadata: map[string]any{"anidb": " 101 "}}
	id, _, ok = ExtractAniDBID(p)
	if !ok || id != 101 {
		t.Fatalf("expected 101 from string metadata, got %d", id)
	}
}

func TestExtractFromNamePattern(t *testing.T) {
	p := &Payload{SeriesName: "Cowboy Bebop [12345]"}
	id, source, ok := ExtractAniDBID(p)
	if !ok || id != 12345 || source != "name_pattern" {
		t.Fatalf("expected 12345 via name_pattern, got %d via %s", id, source)
	}

	// Item name is used when the series name is empty.
	p = &Payload{ItemName: "Episode 1 [678]"}
	id, _, ok = ExtractAniDBID(p)
	if !ok || id != 678 {
		t.Fatalf("expected 678 from item name, got %d", id)
	}
}

func TestExtractNoMatch(t *testing.T) {
	p := &Payload{
		SeriesName:  "Plain Title Without Markers",
		ProviderIDs: map[string]string{"imdb": "tt0213338"},
		Metadata:    map[string]any{"year": 1998},
	}
	if _, _, ok := ExtractAniDBID(p); ok {
		t.Fatal("expected extraction to fail, caller must not guess")
	}
}

func TestValidate(t *testing.T) {
	valid := &Payload{Event: "playback.stop", ItemType: "Episode", Username: "kira"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	cases := []struct {
		name string
		p    Payload
	}{
		{"unknown event", Payload{Event: "playback.start", ItemType: "Episode", Username: "kira"}},
		{"movie item", Payload{Event: "playback.stop", ItemType: "Movie", Username: "kira"}},
		{"missing user", Payload{Event: "playback.stop", ItemType: "Episode"}},
	}
	for _, tc := range cases {
		if err := tc.p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
