package transfer

import (
	"reflect"
	"testing"
)

func TestFindTimes(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      []string
		malformed int
	}{
		{"colon", "18:05", []string{"18:05"}, 0},
		{"dot", "18.05", []string{"18:05"}, 0},
		{"single digit hour padded", "7:05", []string{"07:05"}, 0},
		{"single digit minute rejected", "7.5", nil, 0},
		{"hour out of range", "25:10", nil, 1},
		{"minute out of range", "18:75", nil, 1},
		{"two times", "10:00 ve 11:30", []string{"10:00", "11:30"}, 0},
		{"numeric date is not a time", "12.05.2024", nil, 0},
		{"glued to letters", "A18:05", nil, 0},
		{"glued to digits", "118:05", nil, 0},
		{"seconds are not a time", "09:14:02", nil, 0},
		{"with label", "Alış saati: 06:45", []string{"06:45"}, 0},
		{"trailing sender colon", "11:50: transfer ready", []string{"11:50"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times, malformed := findTimes(tt.in)
			var got []string
			for _, tok := range times {
				got = append(got, tok.String())
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("findTimes(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if malformed != tt.malformed {
				t.Errorf("findTimes(%q) malformed = %d, want %d", tt.in, malformed, tt.malformed)
			}
		})
	}
}

func TestIsPureTimeLine(t *testing.T) {
	e := Default()
	tests := []struct {
		in   string
		want bool
	}{
		{"18:05", true},
		{"Saat 18:05", true},
		{"Alış saati: 06:45", true},
		{"18:05 TK1710", false},
		{"18:05 Funda Kara", false},
		{"10:00 11:30", false},
		{"Funda", false},
	}
	for _, tt := range tests {
		if got := e.IsPureTimeLine(tt.in); got != tt.want {
			t.Errorf("IsPureTimeLine(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindFlights(t *testing.T) {
	e := Default()
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "TK1710", []string{"TK1710"}},
		{"spaced", "TK 1710", []string{"TK1710"}},
		{"suffix letter", "PC2020A", []string{"PC2020A"}},
		{"lowercase glued", "tk1710", []string{"TK1710"}},
		{"lowercase spaced rejected", "pc 2020", nil},
		{"lowercase spaced after label", "Uçak kodu: pc 2020", []string{"PC2020"}},
		{"labeled comes first", "AJ100 ucus: TK1710", []string{"TK1710", "AJ100"}},
		{"single letter prefix", "U2 3011 ve U23011", []string{"U23011"}},
		{"stopword", "No 12 Kat 3 Oda 1204", nil},
		{"airport stopword", "SAW 1234", nil},
		{"time digits", "TK 18:05", nil},
		{"inside word", "ABCD1234", nil},
		{"two flights", "TK1710 PC2020", []string{"TK1710", "PC2020"}},
		{"none", "Funda Kara", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, f := range e.findFlights(tt.in) {
				got = append(got, f.Code)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("findFlights(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFindFlights_LabeledFirst(t *testing.T) {
	e := Default()
	flights := e.findFlights("AJ100 flight: TK1710")
	if len(flights) == 0 {
		t.Fatal("findFlights found nothing")
	}
	if flights[0].Code != "TK1710" || !flights[0].Labeled {
		t.Errorf("findFlights()[0] = %+v, want labeled TK1710", flights[0])
	}

	if got := e.findFlights("Funda Kara"); len(got) != 0 {
		t.Errorf("findFlights should find nothing in a name, got %+v", got)
	}
}

func TestFindTimes_FirstWins(t *testing.T) {
	times, _ := findTimes("Funda 7:05 ve 9:10")
	if len(times) != 2 {
		t.Fatalf("findTimes found %d times, want 2", len(times))
	}
	if times[0].String() != "07:05" || times[0].Sep != ':' {
		t.Errorf("first time = %+v", times[0])
	}
	if times, _ := findTimes("no time here"); len(times) != 0 {
		t.Error("findTimes should find nothing without a time")
	}
}
