package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bibin-skaria/jarbuild/layers"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jarbuild.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
artifact: target/app.jar
mode: exploded
baseImage: eclipse-temurin:17-jre
image: registry.example.com/team/app:1.2.3
output: out/app.tar
jvmFlags:
  - -Xmx512m
  - -Dserver.port=8080
creationTime: epoch-plus-second
copy:
  - layer: extra-config
    src: conf/
    dest: /etc/app/
    filePermissions: "0640"
    owner: "1000:1000"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Artifact != "target/app.jar" {
		t.Errorf("Artifact = %q", c.Artifact)
	}
	if c.BaseImage != "eclipse-temurin:17-jre" {
		t.Errorf("BaseImage = %q", c.BaseImage)
	}
	if len(c.JVMFlags) != 2 || c.JVMFlags[0] != "-Xmx512m" {
		t.Errorf("JVMFlags = %v", c.JVMFlags)
	}
	if len(c.Copies) != 1 || c.Copies[0].Layer != "extra-config" {
		t.Fatalf("Copies = %+v", c.Copies)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "artifact: app.jar\nartefact: typo.jar\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown configuration key")
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	path := writeConfig(t, "artifact: app.jar\nmode: shredded\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}

func TestLoadRejectsCopyWithoutDest(t *testing.T) {
	path := writeConfig(t, "copy:\n  - src: conf/\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a copy directive without dest")
	}
}

func TestParseCreationTime(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Time
		wantNow bool
		wantErr bool
	}{
		{value: "", want: layers.DefaultModTime},
		{value: "epoch-plus-second", want: layers.DefaultModTime},
		{value: "now", wantNow: true},
		{value: "2023-04-05T06:07:08Z", want: time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC)},
		{value: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			c := BuildConfig{CreationTime: tt.value}
			got, err := c.ParseCreationTime()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCreationTime(%q) succeeded, want error", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCreationTime(%q) failed: %v", tt.value, err)
			}
			if tt.wantNow {
				if time.Since(got) > time.Minute {
					t.Errorf("ParseCreationTime(now) = %v, not recent", got)
				}
				return
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseCreationTime(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestToCopySpec(t *testing.T) {
	d := CopyDirective{
		Layer:                "extra-config",
		Src:                  "conf",
		Dest:                 "/etc/app/",
		Includes:             []string{"*.yml"},
		FilePermissions:      "0640",
		DirectoryPermissions: "0750",
		Timestamp:            "2023-04-05T06:07:08Z",
		Owner:                "1000:1000",
	}
	spec, err := d.ToCopySpec()
	if err != nil {
		t.Fatalf("ToCopySpec failed: %v", err)
	}
	if spec.LayerName != "extra-config" {
		t.Errorf("LayerName = %q", spec.LayerName)
	}
	if !spec.DestEndsWithSlash {
		t.Error("DestEndsWithSlash should derive from the trailing separator")
	}
	if spec.Properties.FilePermissions == nil || *spec.Properties.FilePermissions != 0o640 {
		t.Errorf("FilePermissions = %v", spec.Properties.FilePermissions)
	}
	if spec.Properties.DirectoryPermissions == nil || *spec.Properties.DirectoryPermissions != 0o750 {
		t.Errorf("DirectoryPermissions = %v", spec.Properties.DirectoryPermissions)
	}
	if spec.Properties.ModTime == nil || !spec.Properties.ModTime.Equal(time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC)) {
		t.Errorf("ModTime = %v", spec.Properties.ModTime)
	}
	if spec.Properties.Owner == nil || spec.Properties.Owner.User != "1000" || spec.Properties.Owner.Group != "1000" {
		t.Errorf("Owner = %v", spec.Properties.Owner)
	}
}

func TestToCopySpecDefaultsLayerName(t *testing.T) {
	spec, err := CopyDirective{Src: "conf", Dest: "/etc/app"}.ToCopySpec()
	if err != nil {
		t.Fatalf("ToCopySpec failed: %v", err)
	}
	if spec.LayerName != "extra" {
		t.Errorf("LayerName = %q, want extra", spec.LayerName)
	}
	if spec.Properties.FilePermissions != nil || spec.Properties.ModTime != nil {
		t.Errorf("unset directives should leave the property scope empty: %+v", spec.Properties)
	}
}

func TestParseOctalMode(t *testing.T) {
	tests := []struct {
		in      string
		want    os.FileMode
		wantErr bool
	}{
		{in: "0644", want: 0o644},
		{in: "755", want: 0o755},
		{in: "0o600", want: 0o600},
		{in: "1777", wantErr: true},
		{in: "rw-r--r--", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseOctalMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseOctalMode(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOctalMode(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseOctalMode(%q) = %o, want %o", tt.in, got, tt.want)
		}
	}
}

func TestParseOwner(t *testing.T) {
	owner, err := parseOwner("app:wheel")
	if err != nil {
		t.Fatalf("parseOwner failed: %v", err)
	}
	if owner.User != "app" || owner.Group != "wheel" {
		t.Errorf("parseOwner = %+v", owner)
	}

	owner, err = parseOwner("1000")
	if err != nil {
		t.Fatalf("parseOwner failed: %v", err)
	}
	if owner.User != "1000" || owner.Group != "" {
		t.Errorf("parseOwner = %+v", owner)
	}

	if _, err := parseOwner(":"); err == nil {
		t.Error("parseOwner(\":\") should fail")
	}
}
