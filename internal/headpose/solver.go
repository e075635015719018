package headpose

import "math"

type vec3 [3]float64
type mat3 [3][3]float64

const (
	pnpMaxIterations = 100
	pnpLambdaInit    = 1e-3
	pnpLambdaMax     = 1e12
	pnpMinDepth      = 1e-6
)

// rodrigues converts an axis-angle rotation vector into a rotation matrix.
func rodrigues(r vec3) mat3 {
	theta := math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])
	if theta < 1e-12 {
		return mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}

	kx, ky, kz := r[0]/theta, r[1]/theta, r[2]/theta
	s, c := math.Sin(theta), math.Cos(theta)
	v := 1 - c

	return mat3{
		{c + kx*kx*v, kx*ky*v - kz*s, kx*kz*v + ky*s},
		{ky*kx*v + kz*s, c + ky*ky*v, ky*kz*v - kx*s},
		{kz*kx*v - ky*s, kz*ky*v + kx*s, c + kz*kz*v},
	}
}

func matVec(m mat3, v vec3) vec3 {
	return vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

func matMul(a, b mat3) mat3 {
	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return out
}

// projectPoint maps a model point through the pose and pinhole intrinsics.
// ok is false when the point lands behind the camera.
func projectPoint(R mat3, t vec3, p vec3, fx, cx, cy float64) (float64, float64, bool) {
	cam := matVec(R, p)
	cam[0] += t[0]
	cam[1] += t[1]
	cam[2] += t[2]

	if cam[2] < pnpMinDepth {
		return 0, 0, false
	}
	return fx*cam[0]/cam[2] + cx, fx*cam[1]/cam[2] + cy, true
}

// eulerAngles decomposes a rotation matrix into yaw/pitch/roll degrees.
// Yaw is the left/right turn (negative left), pitch the up/down tilt
// (positive up), roll the sideways tilt.
func eulerAngles(R mat3) (yaw, pitch, roll float64) {
	sy := math.Sqrt(R[0][0]*R[0][0] + R[1][0]*R[1][0])

	if sy >= 1e-6 {
		yaw = math.Atan2(R[1][0], R[0][0])
		pitch = math.Atan2(-R[2][0], sy)
		roll = math.Atan2(R[2][1], R[2][2])
	} else {
		yaw = math.Atan2(-R[1][2], R[1][1])
		pitch = math.Atan2(-R[2][0], sy)
		roll = 0
	}

	const deg = 180 / math.Pi
	return yaw * deg, pitch * deg, roll * deg
}

// solve6 solves a 6x6 linear system by Gaussian elimination with partial
// pivoting. Returns false for a singular system.
func solve6(a [6][6]float64, b [6]float64) ([6]float64, bool) {
	var m [6][7]float64
	for i := 0; i < 6; i++ {
		copy(m[i][:6], a[i][:])
		m[i][6] = b[i]
	}

	for col := 0; col < 6; col++ {
		pivot := col
		for row := col + 1; row < 6; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return [6]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for row := col + 1; row < 6; row++ {
			f := m[row][col] / m[col][col]
			for k := col; k < 7; k++ {
				m[row][k] -= f * m[col][k]
			}
		}
	}

	var x [6]float64
	for row := 5; row >= 0; row-- {
		sum := m[row][6]
		for k := row + 1; k < 6; k++ {
			sum -= m[row][k] * x[k]
		}
		x[row] = sum / m[row][row]
	}
	return x, true
}

// solvePnP estimates the rotation and translation projecting the model
// points onto the observed image points: Levenberg-Marquardt least squares
// over a 6-vector (Rodrigues rotation + translation), seeded from the
// spread of the observed points. Duplicated or slightly inconsistent
// observations are tolerated; the result is the least-squares pose.
func solvePnP(object []vec3, image [][2]float64, fx, cx, cy float64) (vec3, vec3, bool) {
	n := len(object)
	if n < 4 || len(image) != n || fx <= 0 {
		return vec3{}, vec3{}, false
	}

	residuals := func(p [6]float64) ([]float64, float64, bool) {
		R := rodrigues(vec3{p[0], p[1], p[2]})
		t := vec3{p[3], p[4], p[5]}
		out := make([]float64, 2*n)
		var cost float64
		for i, op := range object {
			u, v, ok := projectPoint(R, t, op, fx, cx, cy)
			if !ok {
				return nil, 0, false
			}
			out[2*i] = u - image[i][0]
			out[2*i+1] = v - image[i][1]
			cost += out[2*i]*out[2*i] + out[2*i+1]*out[2*i+1]
		}
		return out, cost, true
	}

	p := initialGuess(object, image, fx, cx, cy)

	res, cost, ok := residuals(p)
	if !ok {
		return vec3{}, vec3{}, false
	}

	lambda := pnpLambdaInit
	for iter := 0; iter < pnpMaxIterations; iter++ {
		// Numeric Jacobian by forward differences.
		jac := make([][6]float64, len(res))
		jacOK := true
		for j := 0; j < 6; j++ {
			eps := 1e-6 * math.Max(1, math.Abs(p[j]))
			pj := p
			pj[j] += eps
			resJ, _, okJ := residuals(pj)
			if !okJ {
				pj[j] = p[j] - eps
				resJ, _, okJ = residuals(pj)
				if !okJ {
					jacOK = false
					break
				}
				eps = -eps
			}
			for i := range res {
				jac[i][j] = (resJ[i] - res[i]) / eps
			}
		}
		if !jacOK {
			break
		}

		var jtj [6][6]float64
		var grad [6]float64
		for i := range res {
			for a := 0; a < 6; a++ {
				grad[a] += jac[i][a] * res[i]
				for b := a; b < 6; b++ {
					jtj[a][b] += jac[i][a] * jac[i][b]
				}
			}
		}
		for a := 0; a < 6; a++ {
			for b := 0; b < a; b++ {
				jtj[a][b] = jtj[b][a]
			}
		}

		improved := false
		var stepNorm float64
		for lambda <= pnpLambdaMax {
			damped := jtj
			for d := 0; d < 6; d++ {
				damped[d][d] += lambda*jtj[d][d] + 1e-12
			}
			var rhs [6]float64
			for d := 0; d < 6; d++ {
				rhs[d] = -grad[d]
			}

			delta, solvable := solve6(damped, rhs)
			if !solvable {
				lambda *= 10
				continue
			}

			var pNew [6]float64
			stepNorm = 0
			for d := 0; d < 6; d++ {
				pNew[d] = p[d] + delta[d]
				stepNorm += delta[d] * delta[d]
			}

			resNew, costNew, okNew := residuals(pNew)
			if okNew && costNew < cost {
				p, res = pNew, resNew
				improvement := cost - costNew
				cost = costNew
				lambda = math.Max(lambda*0.1, 1e-12)
				improved = true
				if stepNorm < 1e-16 || improvement < 1e-12 {
					iter = pnpMaxIterations
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
	}

	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return vec3{}, vec3{}, false
		}
	}
	if _, _, ok := residuals(p); !ok {
		return vec3{}, vec3{}, false
	}

	return vec3{p[0], p[1], p[2]}, vec3{p[3], p[4], p[5]}, true
}

// initialGuess seeds the solver facing the camera, with the depth chosen
// so the model's spread matches the observed pixel spread and the
// translation centered on the observed points.
func initialGuess(object []vec3, image [][2]float64, fx, cx, cy float64) [6]float64 {
	var objSpan, imgSpan float64
	for i := range object {
		for j := i + 1; j < len(object); j++ {
			od := math.Hypot(
				math.Hypot(object[i][0]-object[j][0], object[i][1]-object[j][1]),
				object[i][2]-object[j][2],
			)
			if od > objSpan {
				objSpan = od
			}
			id := math.Hypot(image[i][0]-image[j][0], image[i][1]-image[j][1])
			if id > imgSpan {
				imgSpan = id
			}
		}
	}
	if imgSpan < 1 {
		imgSpan = 1
	}
	if objSpan < 1 {
		objSpan = 1
	}

	depth := fx * objSpan / imgSpan

	var objC vec3
	var imgU, imgV float64
	for i := range object {
		objC[0] += object[i][0]
		objC[1] += object[i][1]
		objC[2] += object[i][2]
		imgU += image[i][0]
		imgV += image[i][1]
	}
	n := float64(len(object))
	objC[0] /= n
	objC[1] /= n
	objC[2] /= n
	imgU /= n
	imgV /= n

	return [6]float64{
		0, 0, 0,
		(imgU-cx)/fx*depth - objC[0],
		(imgV-cy)/fx*depth - objC[1],
		depth - objC[2],
	}
}
