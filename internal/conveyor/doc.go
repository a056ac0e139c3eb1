// Package conveyor drives the garment conveyor through the device layer.
//
// Commands wraps the PLC nodes: jog, target slot, run request and the load
// station hanger sensor. SensorLoop polls the hanger sensor into a lock-free
// flag that WaitForHanger and HTTP handlers read without touching the
// device. OutputWriter appends conveyor operations to the conveyor.csv
// hand-off file read back by the POS.
package conveyor
