/*
go-proctor is a real time exam proctoring decision engine.  It consumes the
raw per frame outputs of external vision models (an object detection tensor,
gaze angle bin probabilities, face landmarks) together with discrete browser
events, and turns them into debounced, prioritized, rate limited violation
reports.

The engine does not acquire camera frames, run models or transport reports,
those belong to external collaborators.  Each monitored examinee gets an
independent Session pipeline owned by a Registry, driven by a periodic tick
plus asynchronously arriving browser events.

See example code and usage in the example subdirectory.
*/
package proctor
