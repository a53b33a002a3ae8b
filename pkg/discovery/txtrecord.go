package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/slaclab/acclive/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT creates TXT records for a PV server.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := make(TXTRecordMap)
	txt[TXTKeyServer] = info.Name
	txt[TXTKeyPrefix] = info.Prefix
	txt[TXTKeyPVCount] = strconv.Itoa(info.PVCount)
	txt[TXTKeyVersion] = info.Version
	if info.Version == "" {
		txt[TXTKeyVersion] = version.Protocol
	}
	return txt
}

// DecodeServerTXT parses TXT records advertised by a PV server.
// The prefix may be empty; the server name is required. Servers speaking
// an incompatible protocol version are rejected.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	info := &ServerInfo{}

	name, ok := txt[TXTKeyServer]
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyServer)
	}
	info.Name = name
	info.Prefix = txt[TXTKeyPrefix]

	if s, ok := txt[TXTKeyPVCount]; ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyPVCount, s)
		}
		info.PVCount = n
	}

	info.Version = txt[TXTKeyVersion]
	if err := version.Check(info.Version); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTXTRecord, TXTKeyVersion, err)
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a sorted slice of
// "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
