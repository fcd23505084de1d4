// Package config loads service configuration with viper and godotenv.
//
// Components own their Config structs with ApplyDefaults and Validate; the
// service binary embeds ServiceConfig and one section per component, then
// calls LoadConfig once at startup.
package config
