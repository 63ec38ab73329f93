package wvc

import (
	"fmt"
	"strings"
)

// DefaultNamespace prefixes the current event vocabulary.
const DefaultNamespace = "webview"

// Role is the side of the channel an instance speaks for.
type Role string

const (
	RoleWidget Role = "widget"
	RoleParent Role = "parent"
)

// Kind enumerates the events that own a fixed slot.
type Kind int

const (
	KindUnknown Kind = iota
	KindInit
	KindReady
	KindChatData
	KindShareData
	KindClose
	KindInitData
)

var legacyNames = map[Kind]string{
	KindInit:      "init",
	KindReady:     "ready",
	KindChatData:  "sendToChat",
	KindShareData: "sendToShare",
	KindClose:     "closeWebview",
	KindInitData:  "initData",
}

func (k Kind) String() string {
	if name, ok := legacyNames[k]; ok {
		return name
	}
	return "unknown"
}

// Sender is the role allowed to emit events of this kind.
func (k Kind) Sender() Role {
	if k == KindInitData {
		return RoleParent
	}
	return RoleWidget
}

// Receiver is the role allowed to subscribe to the fixed slot of this kind.
func (k Kind) Receiver() Role {
	if k.Sender() == RoleWidget {
		return RoleParent
	}
	return RoleWidget
}

// EventSet maps fixed kinds to their current and legacy wire names.
type EventSet struct {
	namespace string
	byName    map[string]resolved
}

type resolved struct {
	kind   Kind
	legacy bool
}

func NewEventSet(namespace string) EventSet {
	namespace = strings.Trim(strings.TrimSpace(namespace), "/")
	if namespace == "" {
		namespace = DefaultNamespace
	}
	s := EventSet{
		namespace: namespace,
		byName:    make(map[string]resolved, len(legacyNames)*2),
	}
	for kind, name := range legacyNames {
		s.byName[name] = resolved{kind: kind, legacy: true}
		s.byName[s.Current(kind)] = resolved{kind: kind}
	}
	return s
}

func (s EventSet) Namespace() string { return s.namespace }

// Current returns the namespaced name, e.g. "webview/init".
func (s EventSet) Current(k Kind) string {
	return s.namespace + "/" + legacyNames[k]
}

// Legacy returns the bare pre-namespace name, e.g. "init".
func (s EventSet) Legacy(k Kind) string {
	return legacyNames[k]
}

// Resolve reports which fixed kind an inbound name belongs to and whether it
// arrived under its legacy alias.
func (s EventSet) Resolve(name string) (Kind, bool) {
	r, ok := s.byName[name]
	if !ok {
		return KindUnknown, false
	}
	return r.kind, r.legacy
}

func deprecationWarning(legacy, current string) string {
	return fmt.Sprintf("Event %q is deprecated and will be removed in the next release, use %q instead", legacy, current)
}
