package utils

import "testing"

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"full number", "+79123456789", "+79****6789"},
		{"us number", "+1234567890", "+12****7890"},
		{"too short", "+123456", "****"},
		{"empty", "", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskPhoneNumber(tt.phone); got != tt.want {
				t.Errorf("MaskPhoneNumber(%q) = %q, want %q", tt.phone, got, tt.want)
			}
		})
	}
}
