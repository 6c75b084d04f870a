package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/aweris/mediacache"
	"github.com/aweris/mediacache/internal/transcode"
)

// openCache builds a Manager from the loaded configuration. extra options
// are applied last.
func openCache(extra ...mediacache.Option) (*mediacache.Manager, error) {
	level, err := compressionLevel(viper.GetString("compression.level"))
	if err != nil {
		return nil, err
	}

	opts := []mediacache.Option{
		mediacache.WithCacheDir(viper.GetString("cache_dir")),
		mediacache.WithBackend(viper.GetString("backend")),
		mediacache.WithCompression(viper.GetBool("compression.enabled"), level),
		mediacache.WithMemoryCache(viper.GetInt("memory_cache_entries")),
		mediacache.WithOrigin(viper.GetString("origin")),
		mediacache.WithMediaBase(mediaSettings()),
		mediacache.WithLogger(logger),
	}

	profiles, err := configuredProfiles()
	if err != nil {
		return nil, err
	}
	for name, p := range profiles {
		opts = append(opts, mediacache.WithProfile(name, p))
	}

	return mediacache.Open(append(opts, extra...)...)
}

func mediaSettings() mediacache.MediaSettings {
	return mediacache.MediaSettings{
		MediaBaseURL: viper.GetString("media.base_url"),
		APIURL:       viper.GetString("api.url"),
		APIBaseURL:   viper.GetString("api.base_url"),
		APIBase:      viper.GetString("api.base"),
	}
}

// configuredProfiles overlays profiles.<name> settings on the built-in
// profile of the same name, or on the photo profile for new names.
func configuredProfiles() (map[string]mediacache.Profile, error) {
	defaults := transcode.DefaultProfiles()
	out := make(map[string]mediacache.Profile)
	for name := range viper.GetStringMap("profiles") {
		p, ok := defaults[name]
		if !ok {
			p = transcode.Photo()
			p.Name = name
		}
		if err := viper.UnmarshalKey("profiles."+name, &p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

func compressionLevel(name string) (mediacache.CompressionLevel, error) {
	switch strings.ToLower(name) {
	case "fastest":
		return mediacache.CompressionFastest, nil
	case "default", "":
		return mediacache.CompressionDefault, nil
	case "better":
		return mediacache.CompressionBetter, nil
	default:
		return 0, fmt.Errorf("invalid compression level %q", name)
	}
}

// closeCache folds the Close error into err.
func closeCache(m *mediacache.Manager, err *error) {
	if cerr := m.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
