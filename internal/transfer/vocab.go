package transfer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Vocabulary holds the locale word lists the pipeline matches against.
// Entries are compared after folding (lowercase, Turkish letters mapped to
// ASCII), so one spelling per word is enough.
type Vocabulary struct {
	Months          []string `toml:"months"`
	Weekdays        []string `toml:"weekdays"`
	AddressKeywords []string `toml:"address_keywords"`
	Places          []string `toml:"places"`
	StreetSuffixes  []string `toml:"street_suffixes"`
	StatusPhrases   []string `toml:"status_phrases"`
	NoiseWords      []string `toml:"noise_words"`
	FlightLabels    []string `toml:"flight_labels"`
	TimeLabels      []string `toml:"time_labels"`
	NameLabels      []string `toml:"name_labels"`
	PaxWords        []string `toml:"pax_words"`
	FlightStopwords []string `toml:"flight_stopwords"`
}

// DefaultVocabulary returns the built-in Turkish and English word lists.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Months: []string{
			"ocak", "subat", "mart", "nisan", "mayis", "haziran", "temmuz",
			"agustos", "eylul", "ekim", "kasim", "aralik",
			"oca", "sub", "nis", "haz", "tem", "agu", "eyl", "eki", "kas", "ara",
			"january", "february", "march", "april", "may", "june", "july",
			"august", "september", "october", "november", "december",
			"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		},
		Weekdays: []string{
			"pazartesi", "sali", "carsamba", "persembe", "cuma", "cumartesi", "pazar",
			"pzt", "cmt", "paz",
			"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
			"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		},
		AddressKeywords: []string{
			"mah", "mahalle", "mahallesi", "cad", "cadde", "caddesi", "sok", "sk", "sokak", "sokagi",
			"bulvar", "bulvari", "blv", "bul", "no", "apt", "apartmani", "kat", "daire", "blok",
			"site", "sitesi", "plaza", "residence", "rezidans", "posta", "kodu",
			"street", "st", "road", "rd", "avenue", "ave", "floor", "suite", "zip",
		},
		// City and district names double as given names ("Fatih") and
		// surnames, so they only mark an address in pairs or next to an
		// address keyword.
		Places: []string{
			"istanbul", "ankara", "izmir", "antalya", "bursa",
			"fatih", "beyoglu", "sisli", "besiktas", "kadikoy", "uskudar", "bakirkoy", "sariyer",
		},
		StreetSuffixes: []string{
			"mah", "mahalle", "mahallesi", "cad", "cadde", "caddesi", "sok", "sk", "sokak", "sokagi",
			"bulvar", "bulvari", "blv", "apt", "apartmani", "sitesi", "plaza", "residence", "rezidans",
			"street", "st", "road", "rd", "avenue", "ave",
		},
		StatusPhrases: []string{
			"ucak indi", "ucak inmis", "ucak geldi", "indi", "geldi", "inis yapti",
			"flight has landed", "flight landed", "landed", "arrived",
			"yolcu alindi", "yolcular alindi", "alindi", "teslim edildi",
			"tamam", "tamamdir", "ok", "okey", "okay", "tesekkurler", "tesekkur ederim", "sagol", "sagolun",
			"thanks", "thank you", "yoldayim", "yolda", "on the way", "bekliyoruz", "bekliyorum",
			"gecikme var", "rotar", "rotarli", "delayed", "iptal", "iptal edildi", "cancelled", "canceled",
			"bu mesaj silindi", "mesaj silindi", "this message was deleted",
			"medya dahil edilmedi", "media omitted", "transfer ready", "hazir",
		},
		NoiseWords: []string{
			"transfer", "transferi", "ready", "hazir", "ist", "saw", "sabiha", "gokcen",
			"havalimani", "havalimanindan", "airport", "arrival", "departure", "gelis", "donus", "varis",
			"karsilama", "vip", "arac", "vito", "minibus", "sprinter", "sofor", "driver",
			"terminal", "dis", "hatlar", "international", "domestic", "ihl",
			"reservation", "rezervasyon", "rez", "tel", "phone", "telefon", "not", "note",
			"tl", "eur", "usd", "kod", "kodu",
		},
		FlightLabels: []string{
			"ucak kodu", "ucak kod", "ucak no", "ucus kodu", "ucus no", "ucus",
			"flight code", "flight number", "flight no", "flight", "flt", "sefer no", "sefer", "ucak",
		},
		TimeLabels: []string{
			"alis saati", "alis saat", "alis zamani", "karsilama saati", "pickup time", "pick up time",
			"pickup", "pick up", "saat", "time", "zaman", "alis",
		},
		NameLabels: []string{
			"isim listesi", "isimler", "isim", "ad soyad", "adi soyadi", "yolcu listesi", "yolcular",
			"yolcu adi", "yolcu", "misafirler", "misafir", "passengers", "passenger", "names", "name",
			"guests", "guest",
		},
		PaxWords: []string{
			"pax", "kisi", "yolcu", "person", "persons", "people", "adult", "adults",
			"yetiskin", "cocuk", "child", "children", "bebek", "infant",
		},
		FlightStopwords: []string{
			"no", "nr", "kat", "oda", "pax", "tel", "apt", "dk", "ist", "saw", "esb", "adb", "ayt",
			"tl", "eur", "usd", "km", "tr", "blok", "d",
		},
	}
}

// LoadVocabulary reads a TOML vocabulary file and merges it onto the defaults.
// An empty path returns the defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	base := DefaultVocabulary()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	var overlay Vocabulary
	if _, err := toml.Decode(string(data), &overlay); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}

	return MergeVocabulary(base, &overlay), nil
}

// MergeVocabulary appends overlay entries to base, dropping duplicates.
func MergeVocabulary(base, overlay *Vocabulary) *Vocabulary {
	return &Vocabulary{
		Months:          mergeWords(base.Months, overlay.Months),
		Weekdays:        mergeWords(base.Weekdays, overlay.Weekdays),
		AddressKeywords: mergeWords(base.AddressKeywords, overlay.AddressKeywords),
		Places:          mergeWords(base.Places, overlay.Places),
		StreetSuffixes:  mergeWords(base.StreetSuffixes, overlay.StreetSuffixes),
		StatusPhrases:   mergeWords(base.StatusPhrases, overlay.StatusPhrases),
		NoiseWords:      mergeWords(base.NoiseWords, overlay.NoiseWords),
		FlightLabels:    mergeWords(base.FlightLabels, overlay.FlightLabels),
		TimeLabels:      mergeWords(base.TimeLabels, overlay.TimeLabels),
		NameLabels:      mergeWords(base.NameLabels, overlay.NameLabels),
		PaxWords:        mergeWords(base.PaxWords, overlay.PaxWords),
		FlightStopwords: mergeWords(base.FlightStopwords, overlay.FlightStopwords),
	}
}

func mergeWords(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, w := range list {
			k := foldPhrase(w)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, w)
		}
	}
	return out
}

// lexicon is the compiled, folded form of a Vocabulary.
type lexicon struct {
	months    map[string]bool
	weekdays  map[string]bool
	address   map[string]bool
	places    map[string]bool
	streets   map[string]bool
	noise     map[string]bool
	pax       map[string]bool
	stopwords map[string]bool

	status       [][]string
	flightLabels [][]string
	timeLabels   [][]string
	nameLabels   [][]string
	labels       map[string]bool
}

func compileVocabulary(v *Vocabulary) *lexicon {
	lx := &lexicon{
		months:       wordSet(v.Months),
		weekdays:     wordSet(v.Weekdays),
		address:      wordSet(v.AddressKeywords),
		places:       wordSet(v.Places),
		streets:      wordSet(v.StreetSuffixes),
		noise:        wordSet(v.NoiseWords),
		pax:          wordSet(v.PaxWords),
		stopwords:    wordSet(v.FlightStopwords),
		status:       phraseList(v.StatusPhrases),
		flightLabels: phraseList(v.FlightLabels),
		timeLabels:   phraseList(v.TimeLabels),
		nameLabels:   phraseList(v.NameLabels),
		labels:       make(map[string]bool),
	}
	for _, list := range [][]string{v.FlightLabels, v.TimeLabels, v.NameLabels} {
		for _, l := range list {
			lx.labels[foldPhrase(l)] = true
		}
	}
	return lx
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if k := foldPhrase(w); k != "" {
			set[k] = true
		}
	}
	return set
}

// phraseList splits phrases into folded word sequences, longest first so
// greedy matching prefers "ucak kodu" over "ucak".
func phraseList(phrases []string) [][]string {
	out := make([][]string, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(foldPhrase(p))
		if len(words) > 0 {
			out = append(out, words)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// matchPhrase returns how many words of ws, starting at i, match the longest
// phrase in list. Zero means no match.
func matchPhrase(ws []word, i int, list [][]string) int {
	for _, p := range list {
		if i+len(p) > len(ws) {
			continue
		}
		ok := true
		for k, pw := range p {
			if ws[i+k].fold != pw {
				ok = false
				break
			}
		}
		if ok {
			return len(p)
		}
	}
	return 0
}
