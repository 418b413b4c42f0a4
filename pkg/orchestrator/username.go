package orchestrator

import "strings"

// defaultDomainToken is appended to a source directory name carrying no
// explicit domain component ("alice" with no domain becomes
// "alice@default").
const defaultDomainToken = "default"

// FormatUsername derives the target Linux username for a source user
// directory name by applying the domain-suffix map. Windows profile directories are conventionally
// named "<name>.<domain>"; the dot-suffixed token is looked up in
// domainSuffixMap to obtain the suffix used in the "@domain" component of
// the Linux username. An unrecognized token is honored as-is, so a source
// directory never fails to migrate merely because its domain is absent
// from the map.
func FormatUsername(directoryName string, domainSuffixMap map[string]string) string {
	name := directoryName
	token := defaultDomainToken
	if dot := strings.LastIndex(directoryName, "."); dot > 0 && dot < len(directoryName)-1 {
		name = directoryName[:dot]
		token = directoryName[dot+1:]
		if mapped, ok := domainSuffixMap[token]; ok {
			token = mapped
		}
	}
	return name + "@" + token
}

// TargetHomeDirectory computes the absolute target home path for a
// formatted Linux username beneath homeRoot (conventionally "/home", but
// configurable via Config.HomeRoot).
func TargetHomeDirectory(homeRoot, username string) string {
	return homeRoot + "/" + username
}
