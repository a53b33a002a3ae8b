package discovery

import (
	"testing"

	"github.com/slaclab/acclive/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeServerTXT(t *testing.T) {
	info := &ServerInfo{Name: "bmad-model", Port: 5064, Prefix: "BMAD:", PVCount: 412}

	txt := EncodeServerTXT(info)
	assert.Equal(t, "bmad-model", txt[TXTKeyServer])
	assert.Equal(t, "BMAD:", txt[TXTKeyPrefix])
	assert.Equal(t, "412", txt[TXTKeyPVCount])
	assert.Equal(t, version.Protocol, txt[TXTKeyVersion])

	decoded, err := DecodeServerTXT(StringsToTXTRecords(TXTRecordsToStrings(txt)))
	require.NoError(t, err)
	assert.Equal(t, "bmad-model", decoded.Name)
	assert.Equal(t, "BMAD:", decoded.Prefix)
	assert.Equal(t, 412, decoded.PVCount)
	assert.Equal(t, version.Protocol, decoded.Version)
}

func TestDecodeServerTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"MissingServer", TXTRecordMap{TXTKeyPrefix: "X:"}, ErrMissingRequired},
		{"EmptyServer", TXTRecordMap{TXTKeyServer: ""}, ErrMissingRequired},
		{"BadCount", TXTRecordMap{TXTKeyServer: "s", TXTKeyPVCount: "many"}, ErrInvalidTXTRecord},
		{"NegativeCount", TXTRecordMap{TXTKeyServer: "s", TXTKeyPVCount: "-1"}, ErrInvalidTXTRecord},
		{"BadVersion", TXTRecordMap{TXTKeyServer: "s", TXTKeyVersion: "one"}, ErrInvalidTXTRecord},
		{"NewerMajor", TXTRecordMap{TXTKeyServer: "s", TXTKeyVersion: "2.0"}, version.ErrIncompatible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeServerTXT(tt.txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeServerTXTOptionalFields(t *testing.T) {
	info, err := DecodeServerTXT(TXTRecordMap{TXTKeyServer: "s"})
	require.NoError(t, err)
	assert.Equal(t, "", info.Prefix)
	assert.Equal(t, 0, info.PVCount)
	assert.Equal(t, "", info.Version)
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"px=A:B", "flag", "", "sv=x=y"})
	assert.Equal(t, "A:B", txt["px"])
	assert.Equal(t, "", txt["flag"])
	assert.Equal(t, "x=y", txt["sv"])
	assert.Len(t, txt, 3)
}

func TestTXTRecordsToStringsSorted(t *testing.T) {
	out := TXTRecordsToStrings(TXTRecordMap{"sv": "a", "pc": "1", "px": "P", "pv": "1.0"})
	assert.Equal(t, []string{"pc=1", "pv=1.0", "px=P", "sv=a"}, out)
}

func TestServerInfoValidate(t *testing.T) {
	assert.ErrorIs(t, (&ServerInfo{}).Validate(), ErrMissingRequired)

	long := make([]byte, MaxInstanceNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, (&ServerInfo{Name: string(long)}).Validate(), ErrInstanceNameTooLong)
	assert.NoError(t, (&ServerInfo{Name: "ok", Prefix: "BMAD:"}).Validate())
}
