// Package descriptor turns loose YouTube URLs into typed resource descriptors
// and resolves them into canonical, storage-ready identities.
package descriptor

import (
	"fmt"
	"regexp"
)

// Kind is the closed set of resource kinds the bot understands.
type Kind int

// Resource kinds, assigned at classification time.
const (
	User Kind = iota + 1
	Channel
	Playlist
	Video
)

// String returns the lowercase name passed to external tooling.
func (k Kind) String() string {
	switch k {
	case User:
		return "user"
	case Channel:
		return "channel"
	case Playlist:
		return "playlist"
	case Video:
		return "video"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Descriptor is an un-canonicalized classification result. ID is the token
// exactly as captured from the URL.
type Descriptor struct {
	ID   string
	Kind Kind
}

// URL renders the page URL for the descriptor.
func (d Descriptor) URL() string {
	return resourceURL(d.Kind, d.ID)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%s)", d.Kind, d.ID)
}

// Canonical is a resolved resource identity. Folder is the storage key and
// equals ID unless the folder-exception table overrides it.
type Canonical struct {
	ID     string
	Folder string
	Kind   Kind
}

// URL renders the canonical target URL handed to the archive launcher.
func (c Canonical) URL() string {
	return resourceURL(c.Kind, c.ID)
}

func resourceURL(kind Kind, id string) string {
	switch kind {
	case User:
		return CanonicalPrefix + "user/" + id + "/videos"
	case Channel:
		return CanonicalPrefix + "channel/" + id + "/videos"
	case Playlist:
		return CanonicalPrefix + "playlist?list=" + id
	case Video:
		return CanonicalPrefix + "watch?v=" + id
	default:
		return ""
	}
}

var folderRE = regexp.MustCompile(`^[-_A-Za-z0-9]+$`)

// ValidFolder reports whether name is safe to use as a path component or a
// raw argument to an external tool.
func ValidFolder(name string) bool {
	return folderRE.MatchString(name)
}

// folderExceptions maps canonical usernames to the folder their archive was
// created under before canonical-case lookups existed.
var folderExceptions = map[string]string{
	"jblow888":      "JBlow888",
	"LinusTechTips": "LinusTechTips-user",
}

// FolderFor returns the folder for a canonical username.
func FolderFor(username string) string {
	if folder, ok := folderExceptions[username]; ok {
		return folder
	}
	return username
}
