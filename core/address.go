package core

import "strings"

// GliaStateName is the explicit spelling of "the current state" in an address.
const GliaStateName = "gl"

// Address is a parsed NPL file name:
//
//	[(stateName)][nid:]relativePath[@dnsServerName]
//
// Some valid addresses:
//
//	"user001@paraengine.com:script/hello.lua"           file of user001 in its default state
//	"(world1)server001@paraengine.com:script/hello.lua" file of server001 in state world1
//	"(worker1)script/hello.lua"                         local file in state worker1
//	"(gl)script/hello.lua"                              local file in the current state
//	"script/hello.lua"                                  local file in the current state
type Address struct {
	// StateName is the runtime state the file belongs to. Empty means the
	// current or default state.
	StateName string

	// NID identifies the remote runtime. Empty means local.
	NID string

	// RelativePath uses forward slashes, e.g. "script/sample.lua".
	RelativePath string

	// DNSServerName is where NID is resolved to an endpoint. Empty means
	// inherit.
	DNSServerName string
}

// ParseAddress parses an address string. It never fails: structure it does
// not recognize is kept as path text.
func ParseAddress(s string) Address {
	var addr Address
	if s == "" {
		return addr
	}

	rest := s
	if rest[0] == '(' {
		if end := strings.IndexByte(rest, ')'); end > 0 {
			if name := rest[1:end]; name != GliaStateName {
				addr.StateName = name
			}
			rest = rest[end+1:]
		}
	}

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		addr.RelativePath = normalizePath(rest)
		return addr
	}
	addr.NID = rest[:colon]
	rest = rest[colon+1:]

	if at := strings.IndexByte(rest, '@'); at >= 0 {
		addr.RelativePath = normalizePath(rest[:at])
		addr.DNSServerName = rest[at+1:]
	} else {
		addr.RelativePath = normalizePath(rest)
	}
	return addr
}

// String serializes the address. ParseAddress(a.String()) == a holds for
// every a returned by ParseAddress.
func (a Address) String() string {
	var rest strings.Builder
	if a.NID != "" || a.DNSServerName != "" || strings.IndexByte(a.RelativePath, ':') >= 0 {
		rest.WriteString(a.NID)
		rest.WriteByte(':')
	}
	rest.WriteString(a.RelativePath)
	if a.DNSServerName != "" {
		rest.WriteByte('@')
		rest.WriteString(a.DNSServerName)
	}

	tail := rest.String()
	switch {
	case a.StateName != "":
		return "(" + a.StateName + ")" + tail
	case looksLikeState(tail):
		// empty parentheses keep a leading "(x)" literal
		return "()" + tail
	}
	return tail
}

// IsRemote reports whether the address names a remote node.
func (a Address) IsRemote() bool {
	return a.NID != ""
}

// IsLocal reports whether the address targets this runtime.
func (a Address) IsLocal() bool {
	return a.NID == ""
}

// looksLikeState reports whether ParseAddress would read a state name at
// the start of s.
func looksLikeState(s string) bool {
	return strings.HasPrefix(s, "(") && strings.IndexByte(s, ')') > 0
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
