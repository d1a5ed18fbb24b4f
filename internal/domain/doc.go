// Package domain defines the core types and interfaces for the voice
// runtime. All other packages depend on domain; domain depends on nothing.
package domain
