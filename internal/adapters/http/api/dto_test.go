package api

import (
	"encoding/json"
	"testing"

	"github.com/LdDl/mot-fusion/mot"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSensorDataRequestDecoding(t *testing.T) {
	Convey("Given a sensor payload with a null detection confidence", t, func() {
		payload := `{
			"sensor_id": "cam1",
			"sensor_type": "camera_ir",
			"noise_estimate": 0.25,
			"detections": [
				{"class": "person", "confidence": null, "bbox": [10, 20, 30, 40]},
				{"class": "vehicle", "confidence": 0.9}
			]
		}`
		var req sensorDataRequest
		err := json.Unmarshal([]byte(payload), &req)
		So(err, ShouldBeNil)

		Convey("When it is converted into a reading", func() {
			reading := req.reading()

			Convey("Then the null confidence should be treated as missing", func() {
				So(reading.Detections, ShouldHaveLength, 2)
				So(reading.Detections[0].Confidence, ShouldBeNil)
				So(reading.Detections[0].ConfidenceOrDefault(), ShouldEqual, mot.DefaultConfidence)
				So(reading.Detections[1].Confidence, ShouldNotBeNil)
				So(*reading.Detections[1].Confidence, ShouldEqual, 0.9)
			})

			Convey("Then the noise estimate should be carried over", func() {
				So(reading.NoiseEstimate, ShouldEqual, 0.25)
				So(reading.SensorType, ShouldEqual, mot.SensorCameraIR)
				So(reading.Confidence, ShouldEqual, 1.0)
			})
		})
	})

	Convey("Given a sensor payload without a noise estimate", t, func() {
		var req sensorDataRequest
		err := json.Unmarshal([]byte(`{"sensor_id": "radar1", "sensor_type": "radar", "detections": []}`), &req)
		So(err, ShouldBeNil)

		Convey("Then the reading should keep a zero noise estimate", func() {
			So(req.reading().NoiseEstimate, ShouldEqual, 0.0)
		})
	})
}
