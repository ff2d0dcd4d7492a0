package shell

import "testing"

func TestIsSelfInvocation(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"kj", true},
		{"kj --listen", true},
		{"/usr/local/bin/kj -v", true},
		{"ls -la | kj", false},
		{"make test 2>&1 | kj -l", false},
		{"kjx", false},
		{"echo 'unterminated | kj", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSelfInvocation(tt.command); got != tt.want {
			t.Errorf("IsSelfInvocation(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}
