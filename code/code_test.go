package code

import "testing"

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{ParseError, "parse error"},
		{InvalidRequest, "invalid request"},
		{MethodNotFound, "method not found"},
		{InvalidParams, "invalid parameters"},
		{InternalError, "internal error"},
	}
	for _, test := range tests {
		if got := test.code.Error(); got != test.want {
			t.Errorf("%d.Error(): got %q, want %q", test.code, got, test.want)
		}
		if got := test.code.String(); got != test.want {
			t.Errorf("%d.String(): got %q, want %q", test.code, got, test.want)
		}
	}
}

func TestUnknownCode(t *testing.T) {
	const c = Code(-1)
	if got, want := c.Error(), "error code -1"; got != want {
		t.Errorf("Error(): got %q, want %q", got, want)
	}
}
