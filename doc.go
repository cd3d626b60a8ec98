/*
Package otarepo provides CLI tooling to work with remote repositories of OTA2 schema libraries.

The primary goal of otarepo is to keep a local copy of repository items in sync
with their remote repository, and to let users lock items, edit them as a local
work in progress, and commit their changes back.
*/
package otarepo
