package at

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		line string
		code ResultCode
		rest string
	}{
		{"OK", ResultOK, ""},
		{"  OK\r", ResultOK, ""},
		{"ERROR", ResultError, ""},
		{"SiK 1.9 on HM-TRP OK", ResultOK, "SiK 1.9 on HM-TRP"},
		{"SiKOK", ResultOK, "SiK"},
		{"garbage\x01ERROR", ResultError, "garbage\x01"},
		{"S3:NETID=25", ResultNone, "S3:NETID=25"},
		{"", ResultNone, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			code, rest := Classify(tc.line)
			require.Equal(t, tc.code, code)
			require.Equal(t, tc.rest, rest)
		})
	}
}

func TestCommands(t *testing.T) {
	require.Equal(t, []byte("ATI\r\n"), Line(CmdInfo))
	require.Equal(t, "ATS3=25", SetParam(3, 25))
	require.Equal(t, "ATS4?", GetParam(4))
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams("ATI5\nS0:FORMAT=25\nS1:SERIAL_SPEED=57\nS3:NETID=25\n S4:TXPOWER=20 \nS15:MAX_WINDOW=131")
	require.NoError(t, err)
	require.Equal(t, []Param{
		{0, "FORMAT", 25},
		{1, "SERIAL_SPEED", 57},
		{3, "NETID", 25},
		{4, "TXPOWER", 20},
		{15, "MAX_WINDOW", 131},
	}, params)
	require.Equal(t, "S3:NETID=25", params[2].String())

	_, err = ParseParams("S1:SERIAL_SPEED")
	require.Error(t, err)
	_, err = ParseParams("S2:AIR_SPEED=fast")
	require.Error(t, err)

	params, err = ParseParams("")
	require.NoError(t, err)
	require.Empty(t, params)
}
