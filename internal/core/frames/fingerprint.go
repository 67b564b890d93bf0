// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frames

import (
	"hash/fnv"
	"image"

	"github.com/disintegration/imaging"
)

// Fingerprint hashes an 8x8 box-filtered thumbnail with each channel
// quantised to 4 bits. Frames that differ only by encoder noise usually hash
// the same; any visible change in layout or colour does not. Zero is never
// returned.
func Fingerprint(img image.Image) uint64 {
	thumb := imaging.Resize(img, 8, 8, imaging.Box)
	q := make([]byte, 0, 8*8*3)
	for i := 0; i+3 < len(thumb.Pix); i += 4 {
		q = append(q, thumb.Pix[i]>>4, thumb.Pix[i+1]>>4, thumb.Pix[i+2]>>4)
	}
	h := fnv.New64a()
	_, _ = h.Write(q)
	if v := h.Sum64(); v != 0 {
		return v
	}
	return 1
}
