//go:build linux

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const board = `
domains:
  - name: little
    cpus: "0-3"
    capacity: 446
    opps:
      - {freq: 500000, power: 26}
      - {freq: 1000000, power: 70}
      - {freq: 1500000, power: 155}
  - name: big
    cpus: "4-5"
    capacity: 1024
    opps:
      - {freq: 1000000, power: 400}
      - {freq: 2000000, power: 1200}
      - {freq: 3000000, power: 2800}
`

func writeBoard(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShow_Table(t *testing.T) {
	out, err := execute(t, "--platform", writeBoard(t, board), "show")
	require.NoError(t, err)
	assert.Contains(t, out, "DOMAIN")
	assert.Contains(t, out, "0-3")
	assert.Contains(t, out, "4-5")
	assert.Contains(t, out, "2800")
}

func TestShow_JSON(t *testing.T) {
	out, err := execute(t, "--platform", writeBoard(t, board), "show", "--json")
	require.NoError(t, err)

	var got []domainView
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "0-3", got[0].CPUs)
	assert.Equal(t, uint64(148), got[0].States[0].Cap)
	assert.Equal(t, uint64(1024), got[1].States[2].Cap)
}

func TestDomains(t *testing.T) {
	out, err := execute(t, "--platform", writeBoard(t, board), "domains")
	require.NoError(t, err)
	assert.Contains(t, out, "MAX CAP")
	assert.Contains(t, out, "446")
	assert.Contains(t, out, "1024")
}

func TestLookup(t *testing.T) {
	path := writeBoard(t, board)

	out, err := execute(t, "--platform", path, "lookup", "--cpu", "5", "--util", "400")
	require.NoError(t, err)
	assert.Equal(t, "cpu5 util 400 -> cap 682 power 1200\n", out)

	_, err = execute(t, "--platform", path, "lookup", "--cpu", "9")
	assert.Error(t, err)
}

func TestSymmetricPlatformIsDisabled(t *testing.T) {
	const sym = `
domains:
  - {cpus: "0-1", capacity: 1024, opps: [{freq: 1, power: 1}]}
`
	_, err := execute(t, "--platform", writeBoard(t, sym), "show")
	assert.ErrorIs(t, err, errDisabled)
}

func TestInitFailureIsReported(t *testing.T) {
	const broken = `
domains:
  - {cpus: "0-1", capacity: 512, opps: [{freq: 100, power: 10}]}
  - {cpus: "2-3", capacity: 1024, opps: [{freq: 100, power: 0}]}
`
	_, err := execute(t, "--platform", writeBoard(t, broken), "domains")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(io.Discard, "debug", "json")
	assert.NoError(t, err)
	_, err = newLogger(io.Discard, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(io.Discard, "info", "xml")
	assert.Error(t, err)
}

func TestServe_MetricsAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	o := &opts{platformPath: writeBoard(t, board), timeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, o, ln) }()

	url := "http://" + ln.Addr().String() + "/metrics"
	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, string(body), "energy_model_enabled 1")
	assert.Contains(t, string(body), `energy_model_capacity_state_capacity{cpus="4-5",domain="1",state="2"} 1024`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_KeepsRunningWhenBuildFails(t *testing.T) {
	const zeroPower = `
domains:
  - {cpus: "0-1", capacity: 446, opps: [{freq: 500000, power: 0}]}
  - {cpus: "2-3", capacity: 1024, opps: [{freq: 1000000, power: 400}]}
`
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	o := &opts{platformPath: writeBoard(t, zeroPower), timeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, o, ln) }()

	url := "http://" + ln.Addr().String() + "/metrics"
	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, string(body), "energy_model_enabled 0")
	assert.Contains(t, string(body), "energy_model_build_failures_total 1")
	assert.NotContains(t, string(body), "energy_model_capacity_state_capacity{")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
