package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardlab/pkg/config"
)

const sampleConfig = `
log_dir: /var/log/boardlab
db_path: /var/lib/boardlab/runs.db

boards:
  - name: wandboard
    power:
      on_cmd: ["remote_power", "wandboard", "on"]
      off_cmd: ["remote_power", "wandboard", "off"]
    console:
      type: ssh
      ssh:
        host: lab.example.com
        user: boardlab
        key_file: /home/boardlab/.ssh/id_ed25519
        command: "connect wandboard"
    uboot:
      prompt: "=> "
      autoboot_prompt: 'Hit any key to stop autoboot:\s+\d+\s+'
      boot_timeout: 2m
      command_timeout: 30s
    linux:
      boot_command: "run bootcmd"
      username: root
      password: hunter2

  - name: bench-serial
    console:
      type: serial
      serial:
        device: /dev/ttyUSB0
        baud: 115200
    uboot:
      prompt: "U-Boot> "
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Boards, 2)
	assert.Equal(t, "/var/log/boardlab", cfg.LogDir)

	wb, err := cfg.Board("wandboard")
	require.NoError(t, err)
	assert.Equal(t, "ssh", wb.Console.Type)
	assert.Equal(t, "lab.example.com", wb.Console.SSH.Host)
	assert.Equal(t, 2*time.Minute, wb.UBoot.BootTimeout.Std())
	assert.Equal(t, 30*time.Second, wb.UBoot.CommandTimeout.Std())
	require.NotNil(t, wb.Linux)
	assert.Equal(t, "root", wb.Linux.Username)

	bench, err := cfg.Board("bench-serial")
	require.NoError(t, err)
	assert.Equal(t, "serial", bench.Console.Type)
	assert.Equal(t, 115200, bench.Console.Serial.Baud)
	assert.Nil(t, bench.Linux)
}

func TestBoardNotFound(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	_, err = cfg.Board("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no boards",
			yaml:    "boards: []",
			wantErr: "no boards",
		},
		{
			name: "missing prompt",
			yaml: `
boards:
  - name: x
    console: {type: serial, serial: {device: /dev/ttyUSB0}}
`,
			wantErr: "uboot.prompt",
		},
		{
			name: "missing console type",
			yaml: `
boards:
  - name: x
    uboot: {prompt: "=> "}
`,
			wantErr: "console.type",
		},
		{
			name: "unknown console type",
			yaml: `
boards:
  - name: x
    console: {type: telepathy}
    uboot: {prompt: "=> "}
`,
			wantErr: "unknown console type",
		},
		{
			name: "ssh without host",
			yaml: `
boards:
  - name: x
    console: {type: ssh, ssh: {user: u}}
    uboot: {prompt: "=> "}
`,
			wantErr: "ssh.host",
		},
		{
			name: "duplicate board names",
			yaml: `
boards:
  - name: x
    console: {type: serial, serial: {device: /dev/ttyUSB0}}
    uboot: {prompt: "=> "}
  - name: x
    console: {type: serial, serial: {device: /dev/ttyUSB1}}
    uboot: {prompt: "=> "}
`,
			wantErr: "duplicate",
		},
		{
			name: "linux without username",
			yaml: `
boards:
  - name: x
    console: {type: serial, serial: {device: /dev/ttyUSB0}}
    uboot: {prompt: "=> "}
    linux: {password: p}
`,
			wantErr: "linux.username",
		},
		{
			name: "bad duration",
			yaml: `
boards:
  - name: x
    console: {type: serial, serial: {device: /dev/ttyUSB0}}
    uboot: {prompt: "=> ", boot_timeout: soon}
`,
			wantErr: "invalid duration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
