// Package config provides the configuration of a crawl run: defaults,
// validation, the optional .leadcrawler site file and environment binding.
package config
