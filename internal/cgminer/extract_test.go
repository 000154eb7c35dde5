package cgminer

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	t.Run("clean object", func(t *testing.T) {
		obj := ExtractJSON([]byte(`{"STATUS":[{"Code":22}],"id":1}`))
		if obj == nil {
			t.Fatal("expected object, got nil")
		}
		if obj["id"] != float64(1) {
			t.Errorf("expected id 1, got %v", obj["id"])
		}
	})

	t.Run("leading garbage and null padding", func(t *testing.T) {
		raw := append([]byte("STATUS=S,banner junk "), []byte(`{"SUMMARY":[{"MHS av":351.2}]}`)...)
		raw = append(raw, 0x00, 0x00, 0x00, 0x00)
		obj := ExtractJSON(raw)
		if obj == nil {
			t.Fatal("expected object, got nil")
		}
		summary := Section(obj, "SUMMARY")
		if summary == nil {
			t.Fatal("expected SUMMARY section")
		}
		if v, ok := Number(summary, "MHS av"); !ok || v != 351.2 {
			t.Errorf("expected MHS av 351.2, got %v (ok=%v)", v, ok)
		}
	})

	t.Run("trailing bytes after object ignored", func(t *testing.T) {
		obj := ExtractJSON([]byte(`{"a":1}{"b":2}`))
		if obj == nil {
			t.Fatal("expected object, got nil")
		}
		if _, ok := obj["b"]; ok {
			t.Error("second object should be ignored")
		}
	})

	t.Run("trailing comma repaired", func(t *testing.T) {
		obj := ExtractJSON([]byte(`{"POOLS":[{"URL":"stratum+tcp://pool:3333","Accepted":12,}],}`))
		if obj == nil {
			t.Fatal("expected repaired object, got nil")
		}
		pool := Section(obj, "POOLS")
		if pool == nil {
			t.Fatal("expected POOLS section")
		}
		if got := String(pool, "URL"); got != "stratum+tcp://pool:3333" {
			t.Errorf("unexpected URL %q", got)
		}
	})

	t.Run("unbalanced braces", func(t *testing.T) {
		if obj := ExtractJSON([]byte(`{"SUMMARY":[{"MHS av":1.0`)); obj != nil {
			t.Errorf("expected nil for truncated object, got %v", obj)
		}
	})

	t.Run("no object at all", func(t *testing.T) {
		if obj := ExtractJSON([]byte("plain text response")); obj != nil {
			t.Errorf("expected nil, got %v", obj)
		}
		if obj := ExtractJSON(nil); obj != nil {
			t.Errorf("expected nil for empty input, got %v", obj)
		}
	})

	t.Run("control bytes stripped", func(t *testing.T) {
		raw := []byte("{\"ver\x01sion\":\"cg\x02miner 4.10\"}")
		obj := ExtractJSON(raw)
		if obj == nil {
			t.Fatal("expected object, got nil")
		}
		if got := String(obj, "version"); got != "cgminer 4.10" {
			t.Errorf("unexpected version %q", got)
		}
	})

	t.Run("invalid utf8 dropped", func(t *testing.T) {
		raw := []byte{0xff, 0xfe, '{', '"', 'k', '"', ':', '1', '}'}
		obj := ExtractJSON(raw)
		if obj == nil {
			t.Fatal("expected object, got nil")
		}
		if obj["k"] != float64(1) {
			t.Errorf("expected k=1, got %v", obj["k"])
		}
	})
}

func TestSectionHelpers(t *testing.T) {
	t.Run("section of nil object", func(t *testing.T) {
		if Section(nil, "SUMMARY") != nil {
			t.Error("expected nil section")
		}
	})

	t.Run("section with empty list", func(t *testing.T) {
		if Section(map[string]any{"POOLS": []any{}}, "POOLS") != nil {
			t.Error("expected nil section for empty list")
		}
	})

	t.Run("number key priority", func(t *testing.T) {
		m := map[string]any{"MHS av": 2.0, "KHS av": 9.0}
		if v, ok := Number(m, "GHS av", "MHS av", "KHS av"); !ok || v != 2.0 {
			t.Errorf("expected first present key MHS av=2.0, got %v", v)
		}
	})
}

func FuzzExtractJSON(f *testing.F) {
	f.Add([]byte(`{"SUMMARY":[{"GHS av":1.1}]}`))
	f.Add([]byte("garbage{\"a\":1,}\x00\x00"))
	f.Add([]byte("{{{"))
	f.Add([]byte{0xff, '{', '}'})
	f.Add([]byte(""))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Must never panic and never return a non-nil result that did
		// not come from a balanced object.
		obj := ExtractJSON(data)
		_ = obj
	})
}
