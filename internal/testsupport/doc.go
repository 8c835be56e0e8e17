// Package testsupport holds fixtures shared by package tests: temp-dir
// configs, image files, history stores, and a fake generateContent server.
package testsupport
