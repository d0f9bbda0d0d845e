package transfer

import (
	"testing"
)

func TestNormalizeLine(t *testing.T) {
	e := Default()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Funda Kara", "Funda Kara"},
		{"whitespace collapsed", "  Funda \t  Kara  ", "Funda Kara"},
		{"sender stripped", "Eyüp Abi: Funda Kara", "Funda Kara"},
		{"time colon is not a sender", "11:50: transfer ready", "11:50: transfer ready"},
		{"label kept", "Uçak kodu: TK1710", "Uçak kodu: TK1710"},
		{"flight lhs kept", "TK1710: Funda Kara", "TK1710: Funda Kara"},
		{"no space after colon", "No:12 Funda", "No:12 Funda"},
		{"bracket stamp", "[12.05.24, 09:14:02] Eyüp Abi: 18:05", "18:05"},
		{"android stamp", "12.05.2024, 09:14 - Eyüp Abi: TK1710", "TK1710"},
		{"phone removed", "Funda Kara +90 532 123 45 67", "Funda Kara"},
		{"phone keeps adjacent time", "05321234567 18:05", "18:05"},
		{"short number kept", "Oda 1204", "Oda 1204"},
		{"url removed", "bilgi https://example.com/x?y=1 Funda", "bilgi Funda"},
		{"numeric date removed", "12.05.2024 18:05 TK1710", "18:05 TK1710"},
		{"day month removed", "12 Mayıs Pazartesi 18:05", "18:05"},
		{"month day year removed", "May 12, 2024 TK1710", "TK1710"},
		{"time is not a day", "18:05 Mayıs transferi", "18:05 Mayıs transferi"},
		{"invisible marks", "\u200eFunda\u200f Kara\u202c", "Funda Kara"},
		{"bullet junk", "- * Funda Kara", "Funda Kara"},
		{"minute fragment kept", ":30", ":30"},
		{"mojibake repaired", "UÃ§ak kodu: TK1710", "Uçak kodu: TK1710"},
		{"uppercase apostrophe untouched", "GENÇ’İN AİLESİ", "GENÇ’İN AİLESİ"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.NormalizeLine(tt.in); got != tt.want {
				t.Errorf("NormalizeLine(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeLine_Idempotent(t *testing.T) {
	e := Default()
	inputs := []string{
		"Eyüp Abi: Funda Kara",
		"[12.05.24, 09:14:02] Eyüp Abi: Uçak kodu: pc 2020",
		"12 Mayıs Pazartesi 18:05 Funda Kara +90 532 123 45 67",
		"YolcularÄ±n isimleri: Ã‡aÄŸla Åžen",
	}
	for _, in := range inputs {
		once := e.NormalizeLine(in)
		if twice := e.NormalizeLine(once); twice != once {
			t.Errorf("NormalizeLine not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestRepairMojibake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ã§", "ç"},
		{"UÃ§uÅŸ", "Uçuş"},
		{"Ã‡aÄŸla Åžen", "Çağla Şen"},
		{"ÄŸ", "ğ"},
		{"Ä±", "ı"},
		{"Uçuş", "Uçuş"},
		{"café", "café"},
		{"plain ascii", "plain ascii"},
		{"Ã", "Ã"},
		{"GENÇ’İN", "GENÇ’İN"},
		{"KOÇ’UN", "KOÇ’UN"},
		{"ÖZ’ÜN", "ÖZ’ÜN"},
		{"Ayseâ€™nin", "Ayse’nin"},
	}
	for _, tt := range tests {
		got := RepairMojibake(tt.in)
		if got != tt.want {
			t.Errorf("RepairMojibake(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := RepairMojibake(got); again != got {
			t.Errorf("RepairMojibake(%q) not idempotent: %q", got, again)
		}
	}
}

func TestRemovePhones(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0532 123 45 67", " "},
		{"+905321234567", " "},
		{"(0532) 123-45-67 Ali", "  Ali"},
		{"1234567", "1234567"},
		{"TK1710", "TK1710"},
		{"18:05 1204", "18:05 1204"},
	}
	for _, tt := range tests {
		if got := removePhones(tt.in); got != tt.want {
			t.Errorf("removePhones(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
