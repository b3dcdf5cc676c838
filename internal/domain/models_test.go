package domain

import (
	"testing"
)

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Conversation{}.TableName():   "conversations",
		Message{}.TableName():        "messages",
		Car{}.TableName():            "cars",
		Recommendation{}.TableName(): "recommendations",
		NextStep{}.TableName():       "next_steps",
		Idempotency{}.TableName():    "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("TableName = %q; want %q", got, want)
		}
	}
}

func TestValidLanguage(t *testing.T) {
	for _, lang := range []string{LangEnglish, LangChinese} {
		if !ValidLanguage(lang) {
			t.Errorf("ValidLanguage(%q) = false; want true", lang)
		}
	}
	for _, lang := range []string{"", "fr", "EN", "zh-CN"} {
		if ValidLanguage(lang) {
			t.Errorf("ValidLanguage(%q) = true; want false", lang)
		}
	}
}

func TestMessageMeta_ValueAndScan_RoundTrip(t *testing.T) {
	in := MessageMeta{
		Kind:          MetaKindModel,
		Model:         "qwen-plus",
		TokenEstimate: 128,
	}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		t.Fatalf("Value produced %T(%v); want non-empty string", v, v)
	}

	var out MessageMeta
	if err := out.Scan(s); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out != in {
		t.Fatalf("round-trip mismatch: got %+v want %+v", out, in)
	}
}

func TestMessageMeta_Value_ZeroIsNull(t *testing.T) {
	var m MessageMeta
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Fatalf("zero meta should store as NULL, got %v", v)
	}
}

func TestMessageMeta_Scan_NullAndBytes(t *testing.T) {
	var m MessageMeta
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if m != (MessageMeta{}) {
		t.Fatalf("Scan(nil) should zero the meta, got %+v", m)
	}

	if err := m.Scan([]byte(`{"kind":"error","error":true}`)); err != nil {
		t.Fatalf("Scan(bytes): %v", err)
	}
	if m.Kind != MetaKindError || !m.Error {
		t.Fatalf("Scan(bytes) mismatch: %+v", m)
	}

	if err := m.Scan(42); err == nil {
		t.Fatalf("Scan(int) should fail")
	}
}

func TestStringList_RoundTrip(t *testing.T) {
	in := StringList{"sunroof", "AWD", "倒车影像"}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out StringList
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("element %d mismatch: got %q want %q", i, out[i], in[i])
		}
	}

	var empty StringList
	v2, err := empty.Value()
	if err != nil || v2 != nil {
		t.Fatalf("empty list should store as NULL, got v=%v err=%v", v2, err)
	}
}
