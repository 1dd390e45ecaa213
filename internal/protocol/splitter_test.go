package protocol_test

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/omnitool/omnitool/internal/protocol"
	"github.com/stretchr/testify/require"
)

func collect() (*[]string, protocol.LineFunc) {
	var lines []string
	return &lines, func(line string) {
		lines = append(lines, line)
	}
}

func TestSplitter(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		chunks   []string
		then     []string
	}{
		{"single line", []string{"hello\n"}, []string{"hello"}},
		{"two lines one chunk", []string{"a\nb\n"}, []string{"a", "b"}},
		{"line split across chunks", []string{`{"title":"X"`, `,"duration":5}` + "\n"}, []string{`{"title":"X","duration":5}`}},
		{"crlf", []string{"a\r\nb\r\n"}, []string{"a", "b"}},
		{"empty lines kept", []string{"\n\n"}, []string{"", ""}},
		{"unterminated tail", []string{"a\nb"}, []string{"a", "b"}},
		{"byte by byte", strings.Split("ab\ncd\n", ""), []string{"ab", "cd"}},
		{"no data", nil, nil},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			lines, fn := collect()
			s := protocol.NewSplitter(fn)
			for _, chunk := range tt.chunks {
				n, err := s.Write([]byte(chunk))
				require.NoError(t, err)
				require.Equal(t, len(chunk), n)
			}
			s.Flush()
			require.Equal(t, tt.then, *lines)
		})
	}
}

func TestSplitterHoldsFragment(t *testing.T) {
	t.Parallel()
	lines, fn := collect()
	s := protocol.NewSplitter(fn)

	_, err := s.Write([]byte(`{"title":"X"`))
	require.NoError(t, err)
	require.Empty(t, *lines)

	_, err = s.Write([]byte("\n"))
	require.NoError(t, err)
	require.Equal(t, []string{`{"title":"X"`}, *lines)

	_, err = s.Write([]byte("tail"))
	require.NoError(t, err)
	s.Flush()
	s.Flush()
	require.Equal(t, []string{`{"title":"X"`, "tail"}, *lines)
}

func TestSplitterLongLine(t *testing.T) {
	t.Parallel()
	lines, fn := collect()
	s := protocol.NewSplitter(fn)

	long := strings.Repeat("y", 1<<20)
	_, err := io.Copy(s, strings.NewReader(long+"\nshort\n"))
	require.NoError(t, err)
	s.Flush()
	require.Len(t, *lines, 2)
	require.Len(t, (*lines)[0], 1<<20)
	require.Equal(t, "short", (*lines)[1])
}

func ExampleSplitter() {
	s := protocol.NewSplitter(func(line string) {
		switch l := protocol.Decode(line).(type) {
		case protocol.StructuredEvent:
			fmt.Println("event", l.Fields["percent"])
		case protocol.RawText:
			fmt.Println("text", l.Content)
		}
	})
	_, _ = s.Write([]byte("{\"percent\":10}\nnot json\n{\"perc"))
	_, _ = s.Write([]byte("ent\":55}\n"))
	s.Flush()
	// Output:
	// event 10
	// text not json
	// event 55
}
