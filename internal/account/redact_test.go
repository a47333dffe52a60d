package account

import "testing"

func TestRedactSecret(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":          Unset,
		"abc":       "***",
		"abcdef":    "******",
		"abcdefg":   "a*****g",
		"令牌值":       "***",
		"token-xyz": "t*******z",
	}
	for in, want := range cases {
		if got := RedactSecret(in); got != want {
			t.Fatalf("RedactSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactURI(t *testing.T) {
	t.Parallel()

	got := RedactURI("http://siyuan.example.com:6806/api")
	want := "****://******.*******.***:****/***"
	if got != want {
		t.Fatalf("RedactURI = %q, want %q", got, want)
	}
	if RedactURI("") != Unset {
		t.Fatalf("empty URI should redact to %s", Unset)
	}
}
