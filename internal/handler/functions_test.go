package handler

import "testing"

func TestJoinHeaderValues(t *testing.T) {
	tests := []struct {
		name   string
		header string
		values []string
		want   []string
	}{
		{"single value passes through", "X-Trace", []string{"a"}, []string{"a"}},
		{"absent header passes through", "X-Trace", nil, nil},
		{"multi-value header is concatenated", "X-Trace", []string{"a", "b"}, []string{"a, b"}},
		{"set-cookie keeps list shape", "Set-Cookie", []string{"a=1", "b=2"}, []string{"a=1", "b=2"}},
		{"set-cookie match is case-insensitive", "SET-COOKIE", []string{"a=1", "b=2"}, []string{"a=1", "b=2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := joinHeaderValues(tt.header, tt.values)
			if len(got) != len(tt.want) {
				t.Fatalf("joinHeaderValues(%q, %v) = %v, want %v", tt.header, tt.values, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("joinHeaderValues(%q, %v) = %v, want %v", tt.header, tt.values, got, tt.want)
				}
			}
		})
	}
}
