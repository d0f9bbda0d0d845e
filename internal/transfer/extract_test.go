package transfer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_TrailingTime(t *testing.T) {
	res := Extract("Funda Kara\nTK1710\n18:05", TimeAnchored, Options{})

	require.Len(t, res.Records, 1)
	assert.Equal(t, Record{Time: "18:05", Flight: "TK1710", Passengers: []string{"Funda Kara"}}, res.Records[0])
	assert.Equal(t, Header+"\n18:05\t\tTK1710\tFunda Kara", Render(res.Records, false))
}

func TestExtract_LeadingTimes(t *testing.T) {
	res := Extract("18:05\nFunda Kara\nTK1710\n19:30\nAli Veli", TimeAnchored, Options{})

	require.Len(t, res.Records, 2)
	assert.Equal(t, Record{Time: "18:05", Flight: "TK1710", Passengers: []string{"Funda Kara"}}, res.Records[0])
	assert.Equal(t, Record{Time: "19:30", Flight: Unknown, Passengers: []string{"Ali Veli"}}, res.Records[1])

	want := Header + "\n18:05\t\tTK1710\tFunda Kara\n19:30\t\t?\tAli Veli"
	assert.Equal(t, want, Render(res.Records, false))
}

func TestExtract_AddressLineExcluded(t *testing.T) {
	input := "18:05 TK1710\nFunda Kara\nSirkeci Mah. Hüdavendigar Cad. No:12, Istanbul"
	res := Extract(input, TimeAnchored, Options{})

	require.Len(t, res.Records, 1)
	for _, p := range res.Records[0].Passengers {
		assert.NotContains(t, p, "Sirkeci")
		assert.NotContains(t, p, "Istanbul")
	}
	assert.Equal(t, []string{"Funda Kara"}, res.Records[0].Passengers)
	assert.Equal(t, 1, res.Stats.Dropped["address"])
}

func TestExtract_EmptyInput(t *testing.T) {
	for _, policy := range Policies() {
		for _, input := range []string{"", "   ", "\n\n\t\n"} {
			res := Extract(input, policy, Options{})
			assert.NotNil(t, res.Records, "policy %s", policy)
			assert.Empty(t, res.Records, "policy %s", policy)
			assert.Equal(t, Header, Render(res.Records, false))
		}
	}
}

func TestExtract_RowCountEqualsTimeTokens(t *testing.T) {
	tests := []struct {
		input string
		times int
	}{
		{"18:05\nFunda Kara\nTK1710\n19:30\nAli Veli", 2},
		{"07:05 PC2020 Ayse Yilmaz\n08.15 TK2411 Mehmet Oz\n09:00", 3},
		{"Funda Kara\nTK1710\n18:05\nAli Veli\nPC1001\n19:45", 2},
		{"10:00 ve 11:30 TK1 araclar\nMehmet", 2},
		{"18:05 TK1710 Mehmet Yilmaz, Ayse Yilmaz, Fatih Yilmaz\n19:30 PC2020 Fatih Karaman ve esi Ayse Karaman", 2},
		{"Funda Kara\nTK1710\n18:05\nAli Veli\nPC2020\n19:30\nAyse Yilmaz", 2},
		{"18:05 TK1710 GENÇ’İN AİLESİ\n19:30 PC2020 KOÇ’UN KIZI", 2},
		{"ucak indi\ntamam\n", 0},
	}
	for _, tt := range tests {
		res := Extract(tt.input, TimeAnchored, Options{})
		assert.Len(t, res.Records, tt.times, "input %q", tt.input)
	}
}

func TestExtract_PlaceNamesInPassengers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "district as given name in a list",
			input: "18:05 TK1710 Mehmet Yilmaz, Ayse Yilmaz, Fatih Yilmaz",
			want:  []string{"Mehmet Yilmaz", "Ayse Yilmaz", "Fatih Yilmaz"},
		},
		{
			name:  "long line with a district name",
			input: "18:05 TK1710 Fatih Karaman ve esi Ayse Karaman",
			want:  []string{"Fatih Karaman ve esi Ayse Karaman"},
		},
		{
			name:  "name block",
			input: "18:05 TK1710\nFunda Kara\nFatih Sultan Mehmet Yılmaz ve Ayşe",
			want:  []string{"Funda Kara", "Fatih Sultan Mehmet Yılmaz ve Ayşe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(tt.input, TimeAnchored, Options{})
			require.Len(t, res.Records, 1)
			assert.Equal(t, Record{Time: "18:05", Flight: "TK1710", Passengers: tt.want}, res.Records[0])
			assert.Zero(t, res.Stats.Dropped["address"])
		})
	}
}

func TestExtract_StatusRemarkWithTrailingWords(t *testing.T) {
	res := Extract("18:05 TK1710\nFunda Kara\nflight has landed at gate", TimeAnchored, Options{})

	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"Funda Kara"}, res.Records[0].Passengers)
	assert.Equal(t, 1, res.Stats.Dropped["status_phrase"])
}

func TestExtract_UppercaseApostropheUnchanged(t *testing.T) {
	res := Extract("18:05 TK1710\nGENÇ’İN AİLESİ", TimeAnchored, Options{})

	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"GENÇ’İN AİLESİ"}, res.Records[0].Passengers)
}

func TestExtract_TrailingTimesWithStrayTail(t *testing.T) {
	res := Extract("Funda Kara\nTK1710\n18:05\nAli Veli\nPC2020\n19:30\nAyse Yilmaz", TimeAnchored, Options{})

	require.Len(t, res.Records, 2)
	assert.Equal(t, Record{Time: "18:05", Flight: "TK1710", Passengers: []string{"Funda Kara"}}, res.Records[0])
	assert.Equal(t, Record{Time: "19:30", Flight: "PC2020", Passengers: []string{"Ali Veli", "Ayse Yilmaz"}}, res.Records[1])
}

func TestExtract_TitleAboveLeadingTimes(t *testing.T) {
	res := Extract("Yarinki liste\n18:05\nFunda Kara\nTK1710\n19:30\nAli Veli", TimeAnchored, Options{})

	require.Len(t, res.Records, 2)
	assert.Equal(t, "TK1710", res.Records[0].Flight)
	assert.Contains(t, res.Records[0].Passengers, "Funda Kara")
	assert.Equal(t, Record{Time: "19:30", Flight: Unknown, Passengers: []string{"Ali Veli"}}, res.Records[1])
}

func TestExtract_MultipleTimesOnOneLine(t *testing.T) {
	res := Extract("10:00 TK1710 Funda Kara 11:30 PC2020 Ali Veli", TimeAnchored, Options{})

	require.Len(t, res.Records, 2)
	assert.Equal(t, "10:00", res.Records[0].Time)
	assert.Equal(t, "TK1710", res.Records[0].Flight)
	assert.Equal(t, []string{"Funda Kara"}, res.Records[0].Passengers)
	assert.Equal(t, "11:30", res.Records[1].Time)
	assert.Equal(t, "PC2020", res.Records[1].Flight)
	assert.Equal(t, []string{"Ali Veli"}, res.Records[1].Passengers)
}

func TestExtract_NoDigitMutation(t *testing.T) {
	res := Extract("7:05\nTK1710\nFunda Kara", TimeAnchored, Options{})
	require.Len(t, res.Records, 1)
	assert.Equal(t, "07:05", res.Records[0].Time)

	res = Extract("7.5\nTK1710\nFunda Kara", TimeAnchored, Options{})
	assert.Empty(t, res.Records)
}

func TestExtract_SenderPrefix(t *testing.T) {
	res := Extract("Eyüp Abi: Funda Kara\nTK1710\n18:05", TimeAnchored, Options{})
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"Funda Kara"}, res.Records[0].Passengers)

	res = Extract("11:50: transfer ready\nTK1710 Funda Kara", TimeAnchored, Options{})
	require.Len(t, res.Records, 1)
	assert.Equal(t, "11:50", res.Records[0].Time)
}

func TestExtract_WhatsAppExport(t *testing.T) {
	input := strings.Join([]string{
		"[12.05.24, 09:14:02] Eyüp Abi: 14:30",
		"[12.05.24, 09:14:10] Eyüp Abi: Uçak kodu: pc 2020",
		"[12.05.24, 09:14:21] Eyüp Abi: Funda Kara, Ali Veli",
		"[12.05.24, 09:15:40] Eyüp Abi: +90 532 123 45 67",
		"[12.05.24, 09:16:02] Eyüp Abi: uçak indi",
	}, "\n")
	res := Extract(input, TimeAnchored, Options{})

	require.Len(t, res.Records, 1)
	assert.Equal(t, Record{Time: "14:30", Flight: "PC2020", Passengers: []string{"Funda Kara", "Ali Veli"}}, res.Records[0])
}

func TestExtract_Deterministic(t *testing.T) {
	input := "18:05\nFunda Kara\nTK1710\n19:30\nAli Veli, funda kara\nPC2020"
	for _, policy := range Policies() {
		first := Render(Extract(input, policy, Options{}).Records, true)
		for range 5 {
			assert.Equal(t, first, Render(Extract(input, policy, Options{}).Records, true))
		}
	}
}

func TestExtract_DuplicateNamesKeepFirstCasing(t *testing.T) {
	res := Extract("18:05 TK1710\nFunda Kara\nFUNDA KARA\nfunda kara, Ali Veli", TimeAnchored, Options{})

	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"Funda Kara", "Ali Veli"}, res.Records[0].Passengers)
}

func TestExtract_FieldCompletion(t *testing.T) {
	input := strings.Join([]string{
		"18:05",
		"TK1710",
		"Funda Kara",
		"Ayse Yilmaz",
		"19:30",
		"PC2020",
		"Ali Veli",
		"20:15",
		"Mehmet Oz",
	}, "\n")
	res := Extract(input, FieldCompletion, Options{})

	require.Len(t, res.Records, 2)
	assert.Equal(t, Record{Time: "18:05", Flight: "TK1710", Passengers: []string{"Funda Kara", "Ayse Yilmaz"}}, res.Records[0])
	assert.Equal(t, Record{Time: "19:30", Flight: "PC2020", Passengers: []string{"Ali Veli"}}, res.Records[1])

	require.Len(t, res.Incomplete, 1)
	assert.Equal(t, 8, res.Incomplete[0].Line)
	assert.Equal(t, []string{"flight"}, res.Incomplete[0].Missing)
	assert.Equal(t, "20:15", res.Incomplete[0].Record.Time)
	assert.Equal(t, Unknown, res.Incomplete[0].Record.Flight)
}

func TestExtract_FieldCompletionNameBlockStartsNextJob(t *testing.T) {
	input := "18:05\nFunda Kara\nTK1710\nAli Veli\nPC2020\n19:30"
	res := Extract(input, FieldCompletion, Options{})

	require.Len(t, res.Records, 2)
	assert.Equal(t, Record{Time: "18:05", Flight: "TK1710", Passengers: []string{"Funda Kara"}}, res.Records[0])
	assert.Equal(t, Record{Time: "19:30", Flight: "PC2020", Passengers: []string{"Ali Veli"}}, res.Records[1])
	assert.Empty(t, res.Incomplete)
}

func TestExtract_Grouped(t *testing.T) {
	input := strings.Join([]string{
		"19:30 PC2020 Ali Veli",
		"18:05 TK1710 Funda Kara",
		"19:30 PC2020 Mehmet Oz, ali veli",
		"18:05 AJ100 TK1710 Ayse Yilmaz",
	}, "\n")
	res := Extract(input, GroupedByKey, Options{})

	require.Len(t, res.Records, 3)
	assert.Equal(t, Record{Time: "18:05", Flight: "AJ100", Passengers: []string{"Ayse Yilmaz"}}, res.Records[0])
	assert.Equal(t, Record{Time: "18:05", Flight: "TK1710", Passengers: []string{"Funda Kara", "Ayse Yilmaz"}}, res.Records[1])
	assert.Equal(t, Record{Time: "19:30", Flight: "PC2020", Passengers: []string{"Ali Veli", "Mehmet Oz"}}, res.Records[2])
}

func TestExtract_GroupedWithoutTimes(t *testing.T) {
	res := Extract("TK1710\nFunda Kara", GroupedByKey, Options{})

	require.Len(t, res.Records, 1)
	assert.Equal(t, Record{Time: Unknown, Flight: "TK1710", Passengers: []string{"Funda Kara"}}, res.Records[0])
}

func TestExtract_DropRecordsMatching(t *testing.T) {
	input := "18:05 TK1710\nFunda Kara\nSAW\n19:30 PC2020\nAli Veli"
	res := Extract(input, TimeAnchored, Options{DropRecordsMatching: `\bsaw\b`})

	require.Len(t, res.Records, 1)
	assert.Equal(t, "19:30", res.Records[0].Time)
	assert.Equal(t, 1, res.Stats.DroppedRecords)
}

func TestExtract_DropLinesMatching(t *testing.T) {
	res := Extract("18:05 TK1710\nFunda Kara\nSofor: Hasan Usta", TimeAnchored, Options{DropLinesMatching: "sofor"})

	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"Funda Kara"}, res.Records[0].Passengers)
	assert.Equal(t, 1, res.Stats.Dropped["filtered"])
}

func TestExtract_MalformedTimesCounted(t *testing.T) {
	res := Extract("25:10 TK1710\nFunda Kara", TimeAnchored, Options{})

	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.Stats.MalformedTokens)
}

func TestExtract_CRLFAndBOM(t *testing.T) {
	res := Extract("\ufeff18:05\r\nTK1710\r\nFunda Kara\r\n", TimeAnchored, Options{})

	require.Len(t, res.Records, 1)
	assert.Equal(t, Record{Time: "18:05", Flight: "TK1710", Passengers: []string{"Funda Kara"}}, res.Records[0])
}

func TestValidateOptions(t *testing.T) {
	assert.NoError(t, ValidateOptions(Options{}))
	assert.NoError(t, ValidateOptions(Options{DropRecordsMatching: `\bSAW\b`}))

	err := ValidateOptions(Options{DropLinesMatching: "(unclosed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop_lines_matching")
}

func TestCompilePattern_FallsBackToLiteral(t *testing.T) {
	re := compilePattern("(unclosed")
	require.NotNil(t, re)
	assert.True(t, re.MatchString("x (UNCLOSED y"))
	assert.Nil(t, compilePattern("  "))
}

func TestNewExtractor_CustomVocabulary(t *testing.T) {
	v := MergeVocabulary(DefaultVocabulary(), &Vocabulary{NoiseWords: []string{"shuttle"}})
	e := NewExtractor(v)

	res := e.Extract("18:05 TK1710\nShuttle Funda Kara", TimeAnchored, Options{})
	require.Len(t, res.Records, 1)
	assert.Equal(t, []string{"Funda Kara"}, res.Records[0].Passengers)
}
