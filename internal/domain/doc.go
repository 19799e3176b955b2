// Package domain contains the core entities of the study-material
// pipeline: the durable JobRecord that tracks each stage job, the fixed
// progress Stage set, and the Note and Quiz artifacts produced by
// generation. Domain types validate themselves and carry no persistence
// or transport concerns.
package domain
