/*
Package config loads a node's configuration from a YAML file into
types.NodeConfig, the way the teacher's cmd/warren apply command
decodes its resource YAML with gopkg.in/yaml.v3, then applies
defaults for any field the file left unset. No CLI flag overrides a
field loaded here.
*/
package config
