package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/config"
	"github.com/yllada/lynxsync/vpn"
)

var (
	_ vpn.Notifier = (*DBusNotifier)(nil)
	_ vpn.Notifier = (*ExecNotifier)(nil)
	_ vpn.Notifier = (*DesktopNotifier)(nil)
	_ vpn.Notifier = (*LogNotifier)(nil)
)

func sampleEvent() vpn.Event {
	desired := vpn.NewDesiredProfile(&vpn.Country{ID: 228, Name: "United States"}, vpn.CandidateServer{
		Hostname: "us2.nordvpn.com", Station: "5.6.7.8", City: "Dallas", Load: 10,
	})
	return vpn.NewSettingsChangedEvent(vpn.NewSettings(desired, vpn.Policy{}, time.Unix(1700000000, 0)))
}

type fakeConn struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
	err    error
	closed bool
}

func (c *fakeConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	c.path, c.name, c.values = path, name, values
	return c.err
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type recordedRun struct {
	name string
	args []string
}

func recorder(runs *[]recordedRun, out string, err error) runFunc {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*runs = append(*runs, recordedRun{name: name, args: args})
		return []byte(out), err
	}
}

func TestEventWireFormat(t *testing.T) {
	data, err := encode(sampleEvent())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "VPNClient:SettingsChanged", raw["type"])
	assert.Equal(t, "lynx-228-United_States", raw["profileId"])
	assert.Equal(t, "lynxsync", raw["fromProcess"])
	settings, ok := raw["settings"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "us2.nordvpn.com", settings["serverName"])
}

func TestDBusNotifier(t *testing.T) {
	conn := &fakeConn{}
	n, err := newDBusNotifier(conn, "", "")
	require.NoError(t, err)

	require.NoError(t, n.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, dbus.ObjectPath(DefaultObjectPath), conn.path)
	assert.Equal(t, DefaultInterface+".SettingsChanged", conn.name)
	require.Len(t, conn.values, 2)
	assert.Equal(t, "lynx-228-United_States", conn.values[0])
	assert.Contains(t, conn.values[1], `"serverName":"us2.nordvpn.com"`)

	require.NoError(t, n.Close())
	assert.True(t, conn.closed)
}

func TestDBusNotifier_Errors(t *testing.T) {
	conn := &fakeConn{err: errors.New("not connected")}
	n, err := newDBusNotifier(conn, "/org/example/Vpn", "org.example.Vpn")
	require.NoError(t, err)
	assert.Error(t, n.Publish(context.Background(), sampleEvent()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Publish(ctx, sampleEvent()), context.Canceled)

	bad := &fakeConn{}
	_, err = newDBusNotifier(bad, "no-leading-slash", "")
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
	assert.True(t, bad.closed)
}

func TestExecNotifier(t *testing.T) {
	n, err := NewExecNotifier([]string{"redis-cli", "publish", "TO.FireMain"})
	require.NoError(t, err)
	var runs []recordedRun
	n.run = recorder(&runs, "1", nil)

	require.NoError(t, n.Publish(context.Background(), sampleEvent()))
	require.Len(t, runs, 1)
	assert.Equal(t, "redis-cli", runs[0].name)
	require.Len(t, runs[0].args, 3)
	assert.Equal(t, []string{"publish", "TO.FireMain"}, runs[0].args[:2])
	assert.True(t, json.Valid([]byte(runs[0].args[2])), "last argument is the event JSON")
}

func TestExecNotifier_Failure(t *testing.T) {
	n, err := NewExecNotifier([]string{"false"})
	require.NoError(t, err)
	var runs []recordedRun
	n.run = recorder(&runs, "connection refused\n", errors.New("exit status 1"))

	err = n.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "connection refused"))
}

func TestNewExecNotifier_Empty(t *testing.T) {
	for _, cmd := range [][]string{nil, {""}, {"  "}} {
		_, err := NewExecNotifier(cmd)
		assert.ErrorIs(t, err, common.ErrInvalidConfig, "command %q", cmd)
	}
}

func TestDesktopNotifier(t *testing.T) {
	n := NewDesktopNotifier()
	var runs []recordedRun
	n.run = recorder(&runs, "", nil)

	require.NoError(t, n.Publish(context.Background(), sampleEvent()))
	require.Len(t, runs, 1)
	assert.Equal(t, "notify-send", runs[0].name)
	assert.Contains(t, runs[0].args, "--app-name=lynxsync")
	assert.Equal(t, "United States (Dallas) now uses us2.nordvpn.com (load 10%)", runs[0].args[len(runs[0].args)-1])
}

type bufLogger struct {
	common.NopLogger
	buf bytes.Buffer
}

func (l *bufLogger) Info(msg string, args ...interface{}) {
	fmt.Fprintf(&l.buf, msg, args...)
}

func TestLogNotifier(t *testing.T) {
	l := &bufLogger{}
	require.NoError(t, NewLogNotifier(l).Publish(context.Background(), sampleEvent()))
	assert.Contains(t, l.buf.String(), "VPNClient:SettingsChanged")
	assert.Contains(t, l.buf.String(), "lynx-228-United_States")
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.NotifierConfig
		want    interface{}
		wantErr bool
	}{
		{"none", config.NotifierConfig{Type: config.NotifierNone}, &LogNotifier{}, false},
		{"empty", config.NotifierConfig{}, &LogNotifier{}, false},
		{"exec", config.NotifierConfig{Type: config.NotifierExec, Command: []string{"true"}}, &ExecNotifier{}, false},
		{"exec without command", config.NotifierConfig{Type: config.NotifierExec}, nil, true},
		{"desktop", config.NotifierConfig{Type: config.NotifierDesktop}, &DesktopNotifier{}, false},
		{"dbus bad bus", config.NotifierConfig{Type: config.NotifierDBus, Bus: "party"}, nil, true},
		{"unknown", config.NotifierConfig{Type: "carrier-pigeon"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, closeFn, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, n)
			assert.NoError(t, closeFn())
		})
	}
}
