// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

// TableSize is the number of calibrated brightness levels (1..254).
const TableSize = 254

// CurveResolution is the sum of all curve weights.
const CurveResolution = 131072

// curveWeights is the dimming perception curve as per-level increments of
// conduction time. Level n has DALI power 10^((n-1)/(253/3)-1) percent; each
// weight is the step in conduction angle that produces that power on a
// resistive load, in units of 1/CurveResolution of the calibrated range.
var curveWeights = [TableSize]uint16{
	7008, 64, 65, 66, 66, 67, 67, 68, 68, 70,
	70, 70, 71, 72, 73, 73, 74, 74, 75, 76,
	77, 77, 78, 79, 80, 80, 81, 82, 82, 84,
	84, 85, 85, 87, 87, 88, 89, 90, 90, 92,
	92, 93, 94, 95, 96, 96, 98, 98, 100, 100,
	102, 102, 103, 104, 105, 107, 107, 108, 109, 110,
	112, 112, 113, 115, 115, 117, 118, 119, 120, 121,
	122, 123, 125, 126, 127, 128, 130, 130, 132, 133,
	135, 136, 137, 138, 140, 141, 143, 143, 146, 146,
	148, 150, 151, 152, 154, 155, 157, 159, 160, 161,
	163, 165, 167, 168, 169, 172, 173, 174, 177, 178,
	180, 182, 184, 185, 187, 190, 191, 193, 195, 197,
	199, 201, 203, 205, 207, 209, 212, 213, 216, 218,
	221, 222, 225, 227, 230, 232, 234, 237, 240, 242,
	245, 247, 250, 252, 255, 258, 261, 264, 266, 270,
	272, 275, 279, 281, 285, 288, 291, 294, 298, 301,
	305, 308, 311, 316, 319, 322, 327, 330, 334, 339,
	342, 346, 351, 355, 359, 364, 368, 373, 378, 383,
	387, 392, 398, 403, 408, 413, 419, 425, 431, 436,
	443, 448, 455, 462, 468, 476, 482, 489, 497, 504,
	512, 521, 528, 537, 546, 554, 564, 574, 583, 594,
	604, 616, 626, 639, 650, 663, 677, 690, 704, 720,
	735, 751, 768, 787, 805, 825, 847, 868, 892, 917,
	944, 972, 1003, 1035, 1071, 1110, 1151, 1197, 1248, 1303,
	1366, 1436, 1516, 1608, 1715, 1843, 1996, 2189, 2436, 2771,
	3259, 4055, 5711, 21336,
}
