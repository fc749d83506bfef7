// Package road holds the vehicles and the six-road intersection they drive on.
//
// Responsibilities: per-segment passes (car following, lane changes,
// integration, inflow, cleanup), connection transfers between segments, and
// aggregate traffic statistics.
// Key types: Vehicle, Segment, Network.
//
// Dependency rule: road uses physics for the driving laws and reads signal
// colors from the StepContext. It never drives the signal controller.
package road
