package ami_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/asterisk-popup/internal/ami"
)

func fixturesDir() string {
	return filepath.Join("..", "..", "testdata", "fixtures")
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fixturesDir(), name))
	require.NoError(t, err, "reading fixture %s", name)
	return data
}

func TestParseIncomingAnswered(t *testing.T) {
	events := ami.ParseBytes(loadFixture(t, "incoming-answered.raw"))
	require.Len(t, events, 10)

	// The login response is not an event and must be skipped
	assert.Equal(t, "FullyBooted", events[0].Type())
	assert.Equal(t, "from-trunk", events[1].Get("Context"))
	assert.Equal(t, "Ring", events[1].Get("ChannelStateDesc"))

	assert.Equal(t, map[string]int{
		"FullyBooted": 1,
		"Newchannel":  2,
		"NewCallerid": 1,
		"Newstate":    3,
		"DialBegin":   1,
		"Hangup":      2,
	}, countEventTypes(events))

	ringing := filterByType(events, "Newstate")[0]
	assert.Equal(t, "Ringing", ringing.Get("ChannelStateDesc"))
	assert.Equal(t, "Test Caller", ringing.Get("CallerIDName"))
	assert.Equal(t, "100", ringing.Get("ConnectedLineNum"))

	for _, h := range filterByType(events, "Hangup") {
		assert.Equal(t, 16, h.GetInt("Cause"))
		assert.Equal(t, "Normal Clearing", h.Get("Cause-txt"))
	}
}

func TestParseLineFeedCapture(t *testing.T) {
	events := ami.ParseBytes(loadFixture(t, "incoming-unanswered-lf.raw"))
	require.Len(t, events, 4)

	assert.Equal(t, map[string]int{"Newchannel": 1, "Newstate": 1, "Hangup": 2}, countEventTypes(events))
	assert.Equal(t, "SIP/200-0000000a", events[1].Get("Channel"))
	_, ok := events[1].Lookup("CallerIDName")
	assert.False(t, ok, "expected no CallerIDName header")
}

func TestParseEmptyInput(t *testing.T) {
	assert.Empty(t, ami.ParseBytes([]byte("")))
}

func TestParseBannerOnly(t *testing.T) {
	assert.Empty(t, ami.ParseBytes([]byte("Asterisk Call Manager/11.0.0\r\n\r\n")))
}

func TestEventAccessors(t *testing.T) {
	evt := ami.NewEvent(
		"Event", "Hangup",
		"Cause", "16",
		"Channel", "PJSIP/1986-00000019",
	)

	assert.Equal(t, "Hangup", evt.Type())
	assert.Equal(t, 16, evt.GetInt("Cause"))
	assert.Equal(t, "", evt.Get("Missing"))
	assert.Equal(t, 0, evt.GetInt("Channel"))
	assert.False(t, evt.IsResponse())
	assert.Equal(t, []string{"Event", "Cause", "Channel"}, evt.Keys())

	resp := ami.NewEvent("Response", "Success", "Message", "Authentication accepted")
	assert.True(t, resp.IsResponse())
}

func TestEventKeysAreCaseSensitive(t *testing.T) {
	evt := ami.NewEvent("Event", "Newstate", "channel", "lower")
	assert.Equal(t, "", evt.Get("Channel"))
	assert.Equal(t, "lower", evt.Get("channel"))
}

func TestParserStreamReading(t *testing.T) {
	input := "Event: Test\r\nKey: Value\r\n\r\nEvent: Test2\r\nKey2: Value2\r\n\r\n"
	parser := ami.NewParser(strings.NewReader(input))

	evt1, ok := parser.Next()
	require.True(t, ok)
	assert.Equal(t, "Test", evt1.Type())

	evt2, ok := parser.Next()
	require.True(t, ok)
	assert.Equal(t, "Test2", evt2.Type())

	_, ok = parser.Next()
	assert.False(t, ok)
}

func TestParserNoTrailingBlankLine(t *testing.T) {
	// Capture that ends without a trailing blank line
	events := ami.ParseBytes([]byte("Event: Final\r\nKey: Value"))
	require.Len(t, events, 1)
	assert.Equal(t, "Final", events[0].Type())
}

func countEventTypes(events []ami.Event) map[string]int {
	types := map[string]int{}
	for _, e := range events {
		if t := e.Type(); t != "" {
			types[t]++
		}
	}
	return types
}

func filterByType(events []ami.Event, eventType string) []ami.Event {
	var result []ami.Event
	for _, e := range events {
		if e.Type() == eventType {
			result = append(result, e)
		}
	}
	return result
}
