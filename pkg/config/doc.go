// Package config resolves dataset settings from a section-scoped key/value store.
//
// Values come from an INI file (one section per dataset), from explicit calls to Set or
// from environment overrides. A default registered with SetDefault is only consulted when
// no explicit value exists for the same section and key, whatever the order in which the
// two were registered. Keys are case-insensitive, section names are not.
package config
