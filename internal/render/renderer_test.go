package render

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"
	"testing"

	"simbridge/internal/world"
)

func fullPose(name string, x, y float64, q world.Quaternion) world.Pose {
	return world.Pose{
		Name:        name,
		Position:    world.Vector3{X: x, Y: y},
		Orientation: &q,
		Observed: world.FieldX | world.FieldY | world.FieldZ |
			world.FieldQX | world.FieldQY | world.FieldQZ | world.FieldQW,
	}
}

func TestRenderer_Project(t *testing.T) {
	r := New(DefaultOptions())

	testCases := []struct {
		name string
		x, y float64
		want image.Point
	}{
		{name: "origin", x: 0, y: 0, want: image.Pt(320, 240)},
		// py = cy - y*scale = 240 - (-2.0*20) = 280
		{name: "box_1", x: 1.5, y: -2.0, want: image.Pt(350, 280)},
		{name: "up is +y", x: 0, y: 1, want: image.Pt(320, 220)},
		{name: "rounding", x: 0.026, y: 0, want: image.Pt(321, 240)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Project(tc.x, tc.y); got != tc.want {
				t.Errorf("Project(%v, %v) = %v, want %v", tc.x, tc.y, got, tc.want)
			}
		})
	}
}

func TestRenderer_EndToEndExample(t *testing.T) {
	r := New(DefaultOptions())
	snapshot := map[string]world.Pose{
		"box_1": fullPose("box_1", 1.5, -2.0, world.Quaternion{W: 1}),
	}

	img := r.Render(snapshot)

	if img.Bounds() != image.Rect(0, 0, 640, 480) {
		t.Fatalf("Unexpected bounds %v", img.Bounds())
	}

	boxColor, _ := ColorOf(CategoryBox)
	if got := img.RGBAAt(350, 284); got != boxColor {
		t.Errorf("Expected marker color at (350,284), got %v", got)
	}
	if got := img.RGBAAt(346, 280); got != boxColor {
		t.Errorf("Expected marker color at (346,280), got %v", got)
	}

	// yaw=0 のため向き表示線は +x 方向に水平
	if got := img.RGBAAt(366, 280); got != colorHeading {
		t.Errorf("Expected heading at (366,280), got %v", got)
	}
	for _, y := range []int{277, 283} {
		if got := img.RGBAAt(366, y); got == colorHeading {
			t.Errorf("Heading deflected to (366,%d)", y)
		}
	}
}

func TestRenderer_HeadingFollowsYaw(t *testing.T) {
	r := New(DefaultOptions())
	// 反時計回りに90度 → 画面上方向
	q := world.Quaternion{Z: math.Sin(math.Pi / 4), W: math.Cos(math.Pi / 4)}
	img := r.Render(map[string]world.Pose{"vehicle_blue": fullPose("vehicle_blue", -5, -5, q)})

	p := r.Project(-5, -5)
	if got := img.RGBAAt(p.X, p.Y-15); got != colorHeading {
		t.Errorf("Expected heading above marker, got %v", got)
	}
	if got := img.RGBAAt(p.X+15, p.Y); got == colorHeading {
		t.Error("Heading should not point along +x")
	}
}

func TestRenderer_NoOrientationNoHeading(t *testing.T) {
	r := New(DefaultOptions())
	pose := world.Pose{
		Name:     "sphere_1",
		Position: world.Vector3{X: -4, Y: 4},
		Observed: world.FieldX | world.FieldY,
	}
	img := r.Render(map[string]world.Pose{"sphere_1": pose})

	p := r.Project(-4, 4)
	sphereColor, _ := ColorOf(CategorySphere)
	if got := img.RGBAAt(p.X, p.Y); got != sphereColor {
		t.Errorf("Expected bare marker, got %v", got)
	}
	if got := img.RGBAAt(p.X+12, p.Y); got == colorHeading {
		t.Error("Unexpected heading for object without orientation")
	}
}

func TestRenderer_Skips(t *testing.T) {
	r := New(DefaultOptions())
	missingY := world.Pose{Name: "box_no_y", Position: world.Vector3{X: 5, Y: 5}, Observed: world.FieldX}
	snapshot := map[string]world.Pose{
		"ground_plane": fullPose("ground_plane", 5, 5, world.Quaternion{W: 1}),
		"ground_box":   fullPose("ground_box", -5, 5, world.Quaternion{W: 1}),
		"box_no_y":     missingY,
	}

	img := r.Render(snapshot)

	for _, pt := range []image.Point{r.Project(5, 5), r.Project(-5, 5)} {
		if got := img.RGBAAt(pt.X, pt.Y); got != colorBackground {
			t.Errorf("Expected background at %v, got %v", pt, got)
		}
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		want Category
	}{
		{name: "vehicle_blue", want: CategoryVehicle},
		{name: "vehicle_box", want: CategoryVehicle},
		{name: "ground_plane", want: CategorySkip},
		{name: "vehicle_on_ground", want: CategorySkip},
		{name: "box_1", want: CategoryBox},
		{name: "cylinder_box", want: CategoryBox},
		{name: "tall_cylinder", want: CategoryCylinder},
		{name: "sphere", want: CategorySphere},
		{name: "Box", want: CategoryOther},
		{name: "Vehicle", want: CategoryOther},
		{name: "lamp_post", want: CategoryOther},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.name, "vehicle"); got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.name, got, tc.want)
			}
		})
	}
}

func TestEncodeJPEG(t *testing.T) {
	r := New(DefaultOptions())
	img := r.Render(map[string]world.Pose{})

	data, err := EncodeJPEG(img, 50)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Output is not a valid JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != 640 || decoded.Bounds().Dy() != 480 {
		t.Errorf("Unexpected size %v", decoded.Bounds())
	}
}
