package wire

import "testing"

func TestParseWrite(t *testing.T) {
	cmd, err := Parse("name=alice")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != KindWrite || string(cmd.Key) != "name" || string(cmd.Val) != "alice" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseWriteEmptyValue(t *testing.T) {
	cmd, err := Parse("name=")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != KindWrite || string(cmd.Val) != "" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseDelete(t *testing.T) {
	cmd, err := Parse("name!")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != KindDelete || string(cmd.Key) != "name" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseRead(t *testing.T) {
	cmd, err := Parse("name")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != KindRead || string(cmd.Key) != "name" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseScanKeysOnly(t *testing.T) {
	cmd, err := Parse("user:*:active")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != KindScanKeys || string(cmd.Begin) != "user:" || string(cmd.End) != ":active" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseScanWithValues(t *testing.T) {
	cmd, err := Parse("user:*:active=")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != KindScanWithValues || string(cmd.Begin) != "user:" || string(cmd.End) != ":active" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseControlWords(t *testing.T) {
	for word, kind := range map[string]Kind{"commit": KindCommit, "rollback": KindRollback, "stats": KindStats} {
		cmd, err := Parse(word)
		if err != nil {
			t.Fatal(err)
		}
		if cmd.Kind != kind {
			t.Fatalf("%s: got kind %v", word, cmd.Kind)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{"", "=value", "a*b*c", "a=b=c", "!", "a!b", "na!me"} {
		if _, err := Parse(line); err != ErrMalformed {
			t.Errorf("Parse(%q) = _, %v, want ErrMalformed", line, err)
		}
	}
}
