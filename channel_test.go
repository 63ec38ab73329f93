package wvc

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingPeer struct {
	posted []Envelope
	fail   error
}

func (p *recordingPeer) PostMessage(data string) error {
	if p.fail != nil {
		return p.fail
	}
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return err
	}
	p.posted = append(p.posted, env)
	return nil
}

func (p *recordingPeer) events() []string {
	out := make([]string, 0, len(p.posted))
	for _, env := range p.posted {
		out = append(out, env.Event)
	}
	return out
}

func quiet() Option { return WithLogger(NopLogger()) }

func TestWidgetSendersPostCurrentThenLegacy(t *testing.T) {
	cases := []struct {
		name    string
		send    func(c *Channel) error
		current string
		legacy  string
		payload string
	}{
		{"init", (*Channel).SendInit, "webview/init", "init", ""},
		{"ready", (*Channel).SendReady, "webview/ready", "ready", ""},
		{"chat", func(c *Channel) error { return c.SendToChat(map[string]string{"text": "hi"}) }, "webview/sendToChat", "sendToChat", `{"text":"hi"}`},
		{"share", func(c *Channel) error { return c.SendToShare([]int{1, 2}) }, "webview/sendToShare", "sendToShare", `[1,2]`},
		{"close", (*Channel).SendClose, "webview/closeWebview", "closeWebview", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			peer := &recordingPeer{}
			c := NewWidgetChannel(peer, quiet())

			require.NoError(t, tc.send(c))
			require.Equal(t, []string{tc.current, tc.legacy}, peer.events())

			require.Empty(t, peer.posted[0].Warning)
			require.NotEmpty(t, peer.posted[1].Warning)
			require.Contains(t, peer.posted[1].Warning, tc.current)

			if tc.payload == "" {
				require.Empty(t, peer.posted[0].Payload)
			} else {
				require.JSONEq(t, tc.payload, string(peer.posted[0].Payload))
				require.JSONEq(t, tc.payload, string(peer.posted[1].Payload))
			}
		})
	}
}

func TestParentSendInitDataPostsBothNames(t *testing.T) {
	peer := &recordingPeer{}
	c := NewParentChannel(peer, quiet())

	require.NoError(t, c.SendInitData(map[string]any{"userId": 42}))
	require.Equal(t, []string{"webview/initData", "initData"}, peer.events())
	require.JSONEq(t, `{"userId":42}`, string(peer.posted[1].Payload))
}

func TestWrongRoleSendsNothingAndWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	peer := &recordingPeer{}
	parent := NewParentChannel(peer, WithLogger(logger))

	for _, send := range []func() error{
		parent.SendInit,
		parent.SendReady,
		func() error { return parent.SendToChat("x") },
		func() error { return parent.SendToShare("x") },
		parent.SendClose,
		func() error { return parent.SendEvent("custom", nil) },
	} {
		err := send()
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrWrongRole))
		require.False(t, errors.Is(err, ErrTransportFailed))

		var roleErr *RoleError
		require.True(t, errors.As(err, &roleErr))
		require.Equal(t, RoleWidget, roleErr.Want)
	}
	require.Empty(t, peer.posted)
	require.Contains(t, buf.String(), `"level":"warn"`)

	widgetPeer := &recordingPeer{}
	widget := NewWidgetChannel(widgetPeer, quiet())
	err := widget.SendInitData(map[string]any{"a": 1})
	require.True(t, errors.Is(err, ErrWrongRole))
	require.Empty(t, widgetPeer.posted)
}

func TestWrongRoleSettersAreNoops(t *testing.T) {
	widget := NewWidgetChannel(&recordingPeer{}, quiet())
	require.ErrorIs(t, widget.OnInit(func() {}), ErrWrongRole)
	require.ErrorIs(t, widget.OnReady(func() {}), ErrWrongRole)
	require.ErrorIs(t, widget.OnChatData(func(json.RawMessage) {}), ErrWrongRole)
	require.ErrorIs(t, widget.OnShareData(func(json.RawMessage) {}), ErrWrongRole)
	require.ErrorIs(t, widget.OnClose(func() {}), ErrWrongRole)

	parent := NewParentChannel(&recordingPeer{}, quiet())
	called := false
	require.ErrorIs(t, parent.OnInitData(func(map[string]any) { called = true }, false), ErrWrongRole)

	parent.HandleMessage(`{"event":"initData","payload":{"a":1}}`)
	require.False(t, called)
}

func TestSetterRolesFollowKindReceiver(t *testing.T) {
	setters := map[Kind]func(c *Channel) error{
		KindInit:      func(c *Channel) error { return c.OnInit(nil) },
		KindReady:     func(c *Channel) error { return c.OnReady(nil) },
		KindChatData:  func(c *Channel) error { return c.OnChatData(nil) },
		KindShareData: func(c *Channel) error { return c.OnShareData(nil) },
		KindClose:     func(c *Channel) error { return c.OnClose(nil) },
		KindInitData:  func(c *Channel) error { return c.OnInitData(nil, true) },
	}

	for kind, set := range setters {
		for _, role := range []Role{RoleWidget, RoleParent} {
			c := newChannel(role, &recordingPeer{}, quiet())
			err := set(c)
			if role == kind.Receiver() {
				require.NoError(t, err, "%s as %s", kind, role)
				continue
			}
			var roleErr *RoleError
			require.ErrorAs(t, err, &roleErr, "%s as %s", kind, role)
			require.Equal(t, kind.Receiver(), roleErr.Want)
		}
	}
}

func TestTransportFailureIsDistinctFromRoleViolation(t *testing.T) {
	peer := &recordingPeer{fail: errors.New("boom")}
	c := NewWidgetChannel(peer, quiet())

	err := c.SendReady()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTransportFailed))
	require.False(t, errors.Is(err, ErrWrongRole))

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, "webview/ready", terr.Event)

	peer.fail = nil
	require.NoError(t, c.SendReady())
	require.Len(t, peer.posted, 2)
}

func TestLegacyAndCurrentNamesReachTheSameSlot(t *testing.T) {
	c := NewParentChannel(&recordingPeer{}, quiet())

	var inits, readies, closes int
	var chats, shares []string
	require.NoError(t, c.OnInit(func() { inits++ }))
	require.NoError(t, c.OnReady(func() { readies++ }))
	require.NoError(t, c.OnClose(func() { closes++ }))
	require.NoError(t, c.OnChatData(func(p json.RawMessage) { chats = append(chats, string(p)) }))
	require.NoError(t, c.OnShareData(func(p json.RawMessage) { shares = append(shares, string(p)) }))

	for _, name := range []string{"webview/init", "init"} {
		c.HandleMessage(`{"event":"` + name + `"}`)
	}
	for _, name := range []string{"webview/ready", "ready"} {
		c.HandleMessage(`{"event":"` + name + `"}`)
	}
	for _, name := range []string{"webview/closeWebview", "closeWebview"} {
		c.HandleMessage(`{"event":"` + name + `"}`)
	}
	c.HandleMessage(`{"event":"webview/sendToChat","payload":{"n":1}}`)
	c.HandleMessage(`{"event":"sendToChat","payload":{"n":1},"warning":"deprecated"}`)
	c.HandleMessage(`{"event":"sendToShare","payload":"s"}`)

	require.Equal(t, 2, inits)
	require.Equal(t, 2, readies)
	require.Equal(t, 2, closes)
	require.Equal(t, []string{`{"n":1}`, `{"n":1}`}, chats)
	require.Equal(t, []string{`"s"`}, shares)
}

func TestCurrentNamesAlsoReachDynamicSubscribers(t *testing.T) {
	c := NewParentChannel(&recordingPeer{}, quiet())

	var dynamic []string
	c.Subscribe("webview/ready", func(json.RawMessage) { dynamic = append(dynamic, "current") })
	c.Subscribe("ready", func(json.RawMessage) { dynamic = append(dynamic, "legacy") })

	c.HandleMessage(`{"event":"webview/ready"}`)
	c.HandleMessage(`{"event":"ready"}`)

	require.Equal(t, []string{"current"}, dynamic)
}

func TestUnknownEventsRouteToDynamicRegistry(t *testing.T) {
	c := NewParentChannel(&recordingPeer{}, quiet())

	var got []string
	c.Subscribe("webview/resize", func(p json.RawMessage) { got = append(got, string(p)) })

	c.HandleMessage(map[string]any{"event": "webview/resize", "payload": map[string]any{"h": 10}})
	c.HandleMessage(`{"event":"nobody-listens"}`)

	require.Equal(t, []string{`{"h":10}`}, got)
}

func TestMalformedInputIsDroppedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	c := NewParentChannel(&recordingPeer{}, WithLogger(zerolog.New(&buf)))

	called := 0
	require.NoError(t, c.OnInit(func() { called++ }))
	c.Subscribe("anything", func(json.RawMessage) { called++ })

	require.NotPanics(t, func() {
		c.HandleMessage("{not json")
		c.HandleMessage([]byte(`{"payload":1}`))
		c.HandleMessage(42)
		c.HandleMessage(nil)
	})
	require.Zero(t, called)
	require.Contains(t, buf.String(), "{not json")

	c.HandleMessage(`{"event":"init"}`)
	require.Equal(t, 1, called)
}

func TestOnInitDataReplaysSeededQuery(t *testing.T) {
	c := NewWidgetChannel(&recordingPeer{}, quiet(), WithQuery("?user=7&tag=a&tag=b"))

	var got []map[string]any
	require.NoError(t, c.OnInitData(func(d map[string]any) { got = append(got, d) }, false))

	require.Len(t, got, 1)
	require.Equal(t, "7", got[0]["user"])
	require.Equal(t, []string{"a", "b"}, got[0]["tag"])
}

func TestOnInitDataBypassSkipsReplay(t *testing.T) {
	c := NewWidgetChannel(&recordingPeer{}, quiet(), WithQuery("user=7"))

	calls := 0
	require.NoError(t, c.OnInitData(func(map[string]any) { calls++ }, true))
	require.Zero(t, calls)

	c.HandleMessage(`{"event":"initData","payload":{"theme":"dark"}}`)
	require.Equal(t, 1, calls)
	require.Equal(t, map[string]any{"user": "7", "theme": "dark"}, c.InitData())
}

func TestOnInitDataWithoutSnapshotDoesNotReplay(t *testing.T) {
	c := NewWidgetChannel(&recordingPeer{}, quiet())
	calls := 0
	require.NoError(t, c.OnInitData(func(map[string]any) { calls++ }, false))
	require.Zero(t, calls)
	require.Nil(t, c.InitData())
}

func TestOnInitDataReplaysEmptyQuerySnapshot(t *testing.T) {
	c := NewWidgetChannel(&recordingPeer{}, quiet(), WithQuery(""))

	var got []map[string]any
	require.NoError(t, c.OnInitData(func(d map[string]any) { got = append(got, d) }, false))

	require.Len(t, got, 1)
	require.NotNil(t, got[0])
	require.Empty(t, got[0])
	require.Equal(t, map[string]any{}, c.InitData())
}

func TestInitDataReplacePolicy(t *testing.T) {
	c := NewWidgetChannel(&recordingPeer{}, quiet(), WithQuery("user=7"), WithInitDataPolicy(InitDataReplace))

	var last map[string]any
	require.NoError(t, c.OnInitData(func(d map[string]any) { last = d }, true))

	c.HandleMessage(`{"event":"webview/initData","payload":{"theme":"dark"}}`)
	require.Equal(t, map[string]any{"theme": "dark"}, last)

	c.HandleMessage(`{"event":"webview/initData"}`)
	require.Equal(t, map[string]any{"theme": "dark"}, c.InitData())
}

func TestInitDataSnapshotIsACopy(t *testing.T) {
	c := NewWidgetChannel(&recordingPeer{}, quiet(), WithQuery("a=1"))

	var seen map[string]any
	require.NoError(t, c.OnInitData(func(d map[string]any) { seen = d }, false))
	seen["a"] = "mutated"

	require.Equal(t, "1", c.InitData()["a"])
}

func TestParentToWidgetInitDataOverPipe(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	parent := NewParentChannel(hostEnd, quiet(), WithSource(hostEnd))
	widget := NewWidgetChannel(frameEnd, quiet(), WithSource(frameEnd))

	var got []map[string]any
	require.NoError(t, widget.OnInitData(func(d map[string]any) { got = append(got, d) }, false))

	require.NoError(t, parent.SendInitData(map[string]any{"userId": 42}))

	require.Len(t, got, 2)
	for _, d := range got {
		require.Equal(t, map[string]any{"userId": float64(42)}, d)
	}
	require.Equal(t, map[string]any{"userId": float64(42)}, widget.InitData())
}

func TestWidgetHandshakeOverPipe(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	parent := NewParentChannel(hostEnd, quiet(), WithSource(hostEnd))
	widget := NewWidgetChannel(frameEnd, quiet(), WithSource(frameEnd))

	var order []string
	require.NoError(t, parent.OnInit(func() { order = append(order, "init") }))
	require.NoError(t, parent.OnReady(func() { order = append(order, "ready") }))
	require.NoError(t, parent.OnChatData(func(p json.RawMessage) { order = append(order, "chat:"+string(p)) }))

	require.NoError(t, widget.SendInit())
	require.NoError(t, widget.SendReady())
	require.NoError(t, widget.SendToChat("hello"))

	require.Equal(t, []string{"init", "init", "ready", "ready", `chat:"hello"`, `chat:"hello"`}, order)
}

func TestSendEventHasNoLegacyAlias(t *testing.T) {
	peer := &recordingPeer{}
	c := NewWidgetChannel(peer, quiet())

	require.NoError(t, c.SendEvent("webview/resize", map[string]int{"h": 300}))
	require.Equal(t, []string{"webview/resize"}, peer.events())
	require.Empty(t, peer.posted[0].Warning)

	require.ErrorIs(t, c.SendEvent("", nil), ErrInvalidEnvelope)
}

func TestLegacyAliasesCanBeDisabled(t *testing.T) {
	peer := &recordingPeer{}
	c := NewWidgetChannel(peer, quiet(), WithLegacyAliases(false))

	require.NoError(t, c.SendInit())
	require.Equal(t, []string{"webview/init"}, peer.events())
}

func TestCustomNamespace(t *testing.T) {
	peer := &recordingPeer{}
	c := NewWidgetChannel(peer, quiet(), WithNamespace("acme"))

	require.NoError(t, c.SendReady())
	require.Equal(t, []string{"acme/ready", "ready"}, peer.events())
}

func TestOverrideTransportReplaysInit(t *testing.T) {
	peer := &recordingPeer{}
	c := NewWidgetChannel(peer, quiet())

	var sent []string
	require.NoError(t, c.OverrideTransport(func(data string) error {
		sent = append(sent, data)
		return nil
	}))
	require.Len(t, sent, 2)
	require.Contains(t, sent[0], `"event":"webview/init"`)
	require.Contains(t, sent[1], `"event":"init"`)

	require.NoError(t, c.SendReady())
	require.Len(t, sent, 4)
	require.Empty(t, peer.posted)

	c.SetTransport(nil)
	require.NoError(t, c.SendReady())
	require.Len(t, peer.posted, 2)
}

func TestOverrideTransportOnParentDoesNotSend(t *testing.T) {
	c := NewParentChannel(&recordingPeer{}, quiet())
	sent := 0
	require.NoError(t, c.OverrideTransport(func(string) error { sent++; return nil }))
	require.Zero(t, sent)
	require.ErrorIs(t, c.OverrideTransport(nil), ErrTransportFailed)
}

func TestCloseRemovesListener(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	parent := NewParentChannel(hostEnd, quiet(), WithSource(hostEnd))
	widget := NewWidgetChannel(frameEnd, quiet(), WithSource(frameEnd))
	require.Equal(t, 1, hostEnd.Listeners())

	calls := 0
	require.NoError(t, parent.OnReady(func() { calls++ }))

	require.NoError(t, parent.Close())
	require.NoError(t, parent.Close())
	require.Zero(t, hostEnd.Listeners())
	require.True(t, parent.Closed())

	require.NoError(t, widget.SendReady())
	require.Zero(t, calls)
	require.ErrorIs(t, parent.SendInitData(nil), ErrChannelClosed)
}

func TestPanickingCallbackDoesNotBreakDispatch(t *testing.T) {
	c := NewParentChannel(&recordingPeer{}, quiet())

	require.NoError(t, c.OnReady(func() { panic("boom") }))
	second := 0
	c.Subscribe("custom", func(json.RawMessage) { panic("boom") })
	c.Subscribe("custom", func(json.RawMessage) { second++ })

	require.NotPanics(t, func() {
		c.HandleMessage(`{"event":"ready"}`)
		c.HandleMessage(`{"event":"custom"}`)
	})
	require.Equal(t, 1, second)
}

func TestMiddlewareSeesInboundEnvelopes(t *testing.T) {
	var seen []string
	record := func(next HandlerFunc) HandlerFunc {
		return func(env Envelope) error {
			seen = append(seen, env.Event)
			return next(env)
		}
	}
	drop := FilterMiddleware(func(env Envelope) bool { return env.Event != "init" })

	c := NewParentChannel(&recordingPeer{}, quiet(), WithMiddleware(record, drop))
	inits := 0
	require.NoError(t, c.OnInit(func() { inits++ }))

	c.HandleMessage(`{"event":"webview/init"}`)
	c.HandleMessage(`{"event":"init"}`)

	require.Equal(t, []string{"webview/init", "init"}, seen)
	require.Equal(t, 1, inits)
}
