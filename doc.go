/*
go-streamdetect is a real-time, per-frame detection engine for live video.
It finds regions that move against a learnt background, compensating for
camera motion, and regions whose color is rare within the frame, then fuses
the two detector outputs, suppresses detections that flicker between frames
and applies final spatial filters.

The Pipeline type wires the stages together behind a single Process call per
frame and the Runner type feeds it from a live source with one frame in
flight, dropping frames that arrive while it is busy.

See example code and usage in the example subdirectory.
*/
package streamdetect
